package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BashTool executes shell commands inside the agent workspace, capturing
// combined stdout/stderr and reporting a non-zero exit code rather than
// treating it as a tool-level error.
type BashTool struct {
	WorkspaceDir string
	Timeout      time.Duration
	OutputLimit  int
	TmpDir       string
}

func (t BashTool) Name() string        { return "bash" }
func (t BashTool) Description() string { return "Run a shell command in the agent workspace" }

func (t BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (t BashTool) Permission() Permission { return RequiresApproval }

func (t BashTool) SummarizeArgs(args map[string]any) string {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return "bash: <empty>"
	}
	return fmt.Sprintf("bash: %s", command)
}

// Execute runs command under bash -lc, enforcing the configured timeout and
// appending the process's exit code to the output when it failed.
func (t BashTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	command, ok := args["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return nil, errors.New("bash: command argument is required")
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-lc", command)
	if t.WorkspaceDir != "" {
		cmd.Dir = t.WorkspaceDir
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()

	output := out.String()
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			output += fmt.Sprintf("\n[exit code %d]", exitErr.ExitCode())
		} else if runCtx.Err() != nil {
			output += fmt.Sprintf("\n[timed out after %s]", timeout)
		} else {
			return nil, fmt.Errorf("run command: %w", runErr)
		}
	}

	return TruncateOutput(output, t.OutputLimit, t.TmpDir)
}
