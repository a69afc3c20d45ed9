// Package approval defines the Approver interface and enforces permission
// checks before tool execution.
package approval

import (
	"context"
	"fmt"

	"github.com/blufio/blufio/internal/tools"
)

// Approver requests and returns a user's approval decision for a tool call.
type Approver interface {
	RequestApproval(ctx context.Context, req Request) (Decision, error)
}

// Request describes a single approval prompt.
type Request struct {
	Tool        string
	Description string
	Args        map[string]any
}

// Decision is the outcome of an approval request.
type Decision int

const (
	Approved Decision = iota
	Denied
)

// AutoApprover approves everything, logging nothing itself; the supervisor
// wires it for every channel (shell, Telegram, HTTP), in accordance with
// Blufio's single-tenant trust model: the operator already trusts the
// messages reaching the agent.
type AutoApprover struct{}

func (AutoApprover) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	return Approved, nil
}

// ExecuteTool enforces the tool's declared Permission before running it.
// AutoApprove tools bypass the approver entirely; RequiresApproval tools ask
// the approver and surface a denial as an error so it becomes a tool_result
// the model can see and react to.
func ExecuteTool(ctx context.Context, approver Approver, tool tools.Tool, args map[string]any, description string) (*tools.ToolResult, error) {
	if tool.Permission() == tools.RequiresApproval {
		if approver == nil {
			return nil, fmt.Errorf("tool %s requires approval but no approver is configured", tool.Name())
		}
		decision, err := approver.RequestApproval(ctx, Request{
			Tool:        tool.Name(),
			Description: description,
			Args:        args,
		})
		if err != nil {
			return nil, err
		}
		if decision == Denied {
			return nil, fmt.Errorf("tool %s was denied by the operator", tool.Name())
		}
	}
	return tool.Execute(ctx, args)
}

// Describe builds a human-readable summary for an approval prompt, using the
// tool's own Summarizer if it implements one.
func Describe(tool tools.Tool, args map[string]any) string {
	if s, ok := tool.(tools.Summarizer); ok {
		return s.SummarizeArgs(args)
	}
	return tool.Name()
}
