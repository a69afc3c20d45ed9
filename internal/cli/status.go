package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/config"
)

// statusResponse mirrors the gateway's /v1/health body, widened with the
// running flag the CLI needs when the agent is not reachable at all.
type statusResponse struct {
	Running        bool    `json:"running"`
	Status         string  `json:"status"`
	Version        string  `json:"version,omitempty"`
	UptimeSecs     int64   `json:"uptime_secs,omitempty"`
	ActiveSessions int     `json:"active_sessions,omitempty"`
	QueueDepth     int     `json:"queue_depth,omitempty"`
	TodaySpendUSD  float64 `json:"today_spend_usd,omitempty"`
	MonthSpendUSD  float64 `json:"month_spend_usd,omitempty"`
	DailyLimitUSD  float64 `json:"daily_limit_usd,omitempty"`
	Endpoint       string  `json:"endpoint"`
}

func newStatusCmd() *cobra.Command {
	var asJSON, plain bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether blufio is running and its current load/budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resp := fetchStatus(cfg)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printStatus(cmd, resp, plain)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable decorative output")
	return cmd
}

func fetchStatus(cfg *config.Config) statusResponse {
	endpoint := fmt.Sprintf("http://%s/v1/health", cfg.Gateway.ListenAddr)
	resp := statusResponse{Status: "not running", Endpoint: endpoint}
	if !cfg.Gateway.Enabled {
		resp.Status = "gateway disabled"
		return resp
	}

	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return resp
	}
	if cfg.Gateway.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Gateway.BearerToken)
	}

	httpResp, err := client.Do(req)
	if err != nil {
		return resp
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return resp
	}

	var body struct {
		Status         string  `json:"status"`
		Version        string  `json:"version"`
		UptimeSecs     int64   `json:"uptime_secs"`
		ActiveSessions int     `json:"active_sessions"`
		QueueDepth     int     `json:"queue_depth"`
		TodaySpendUSD  float64 `json:"today_spend_usd"`
		MonthSpendUSD  float64 `json:"month_spend_usd"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return resp
	}

	resp.Running = true
	resp.Status = body.Status
	resp.Version = body.Version
	resp.UptimeSecs = body.UptimeSecs
	resp.ActiveSessions = body.ActiveSessions
	resp.QueueDepth = body.QueueDepth
	resp.TodaySpendUSD = body.TodaySpendUSD
	resp.MonthSpendUSD = body.MonthSpendUSD
	resp.DailyLimitUSD = cfg.Cost.DailyLimitUSD
	return resp
}

func formatUptime(secs int64) string {
	days := secs / 86400
	hours := (secs % 86400) / 3600
	minutes := (secs % 3600) / 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func printStatus(cmd *cobra.Command, r statusResponse, plain bool) {
	out := cmd.OutOrStdout()
	ok := "[OK]"
	fail := "[FAIL]"
	if !plain {
		ok = "✓"
		fail = "✗"
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  blufio status")
	fmt.Fprintln(out, "  -----------------------------------")
	if !r.Running {
		fmt.Fprintf(out, "    State:    %s %s\n", fail, r.Status)
		fmt.Fprintf(out, "    Endpoint: %s\n", r.Endpoint)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Start with: blufio serve")
		fmt.Fprintln(out)
		return
	}
	fmt.Fprintf(out, "    State:    %s %s (uptime %s)\n", ok, r.Status, formatUptime(r.UptimeSecs))
	fmt.Fprintf(out, "    Sessions: %d active\n", r.ActiveSessions)
	fmt.Fprintf(out, "    Queue:    %d pending\n", r.QueueDepth)
	fmt.Fprintf(out, "    Spend:    $%.2f today / $%.2f this month (daily limit $%.2f)\n", r.TodaySpendUSD, r.MonthSpendUSD, r.DailyLimitUSD)
	fmt.Fprintln(out)
}
