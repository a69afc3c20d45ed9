package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/config"
	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/supervisor"
	"github.com/blufio/blufio/internal/vault"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the always-on agent: channels, gateway, and the session hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			passphrase, err := resolvePassphrase(cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			v, err := vault.Load(cfg.Vault.Path, passphrase)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sup, err := supervisor.New(ctx, cfg, v)
			if err != nil {
				return err
			}

			logging.Logger().Info("blufio starting",
				"agent", cfg.Agent.Name,
				"model", cfg.Anthropic.Model,
				"gateway", cfg.Gateway.Enabled,
				"telegram", cfg.Telegram.Enabled,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "blufio serving (agent=%s model=%s)\n", cfg.Agent.Name, cfg.Anthropic.Model)

			return sup.Run(ctx)
		},
	}
}
