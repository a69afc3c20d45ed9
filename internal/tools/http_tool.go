package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blufio/blufio/internal/security"
)

const maxHTTPResponseBytes = 50 * 1024

// HTTPTool makes outbound HTTP/HTTPS requests through the SSRF-safe
// resolver and TLS floor, truncating the response body at 50KiB.
type HTTPTool struct {
	Resolver    *security.Resolver
	Timeout     time.Duration
	OutputLimit int
	TmpDir      string
}

func (t HTTPTool) Name() string        { return "http" }
func (t HTTPTool) Description() string { return "Make an HTTP request to a public URL" }

func (t HTTPTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":    map[string]any{"type": "string"},
			"method": map[string]any{"type": "string", "description": "Defaults to GET"},
			"body":   map[string]any{"type": "string"},
		},
		"required": []string{"url"},
	}
}

func (t HTTPTool) Permission() Permission { return RequiresApproval }

func (t HTTPTool) SummarizeArgs(args map[string]any) string {
	url, _ := args["url"].(string)
	method, _ := args["method"].(string)
	if method == "" {
		method = "GET"
	}
	return fmt.Sprintf("http %s %s", method, url)
}

func (t HTTPTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	rawURL, ok := args["url"].(string)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("http: url argument is required")
	}

	u, err := security.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	body, _ := args["body"].(string)

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := security.NewSecureClient(t.Resolver, timeout)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build http request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxHTTPResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read http response: %w", err)
	}

	truncated := false
	if len(data) > maxHTTPResponseBytes {
		data = data[:maxHTTPResponseBytes]
		truncated = true
	}

	output := fmt.Sprintf("HTTP %d\n\n%s", resp.StatusCode, string(data))
	return &ToolResult{Output: output, Truncated: truncated}, nil
}
