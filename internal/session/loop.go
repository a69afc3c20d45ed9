package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blufio/blufio/internal/approval"
	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/provider"
	"github.com/blufio/blufio/internal/tools"
)

const defaultMaxToolRounds = 8

// RunToolLoop drives one turn's tool-use loop: it sends the request, and as
// long as the model answers with tool calls instead of final text, executes
// them through the approval gate and feeds the results back, until the
// model stops calling tools or maxToolRounds is exhausted.
func RunToolLoop(
	ctx context.Context,
	prov provider.Provider,
	registry *tools.Registry,
	approver approval.Approver,
	req provider.ChatRequest,
	maxToolRounds int,
	onUsage func(provider.TokenUsage) error,
) (*provider.ChatResponse, []provider.ChatMessage, error) {
	if prov == nil {
		return nil, nil, fmt.Errorf("provider is required")
	}
	if registry == nil {
		return nil, nil, fmt.Errorf("tool registry is required")
	}
	if maxToolRounds <= 0 {
		maxToolRounds = defaultMaxToolRounds
	}

	history := append([]provider.ChatMessage(nil), req.Messages...)
	toolDefs := registry.ToolDefinitions()
	if req.Tools != nil {
		toolDefs = req.Tools
	}
	totalUsage := provider.TokenUsage{}

	for round := 0; round < maxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, history, err
		}

		resp, err := prov.Chat(ctx, provider.ChatRequest{
			System:    req.System,
			Messages:  history,
			Tools:     toolDefs,
			Model:     req.Model,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return nil, history, err
		}

		totalUsage = sumUsage(totalUsage, resp.Usage)
		if onUsage != nil {
			if err := onUsage(resp.Usage); err != nil {
				return nil, history, err
			}
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content != "" {
				history = append(history, provider.ChatMessage{Role: provider.RoleAssistant, Content: resp.Content})
			}
			resp.Usage = totalUsage
			return resp, history, nil
		}

		history = append(history, provider.ChatMessage{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := make([]provider.ToolResultBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, history, err
			}
			results = append(results, executeToolCall(ctx, registry, approver, call))
		}
		history = append(history, provider.ChatMessage{Role: provider.RoleTool, ToolResults: results})
	}

	return nil, history, fmt.Errorf("max tool rounds exceeded (%d)", maxToolRounds)
}

func executeToolCall(ctx context.Context, registry *tools.Registry, approver approval.Approver, call provider.ToolCall) provider.ToolResultBlock {
	started := time.Now()
	tool, ok := registry.Lookup(call.Name)
	if !ok {
		logging.Logger().Warn("tool call rejected: unknown tool", "tool", call.Name, "tool_call_id", call.ID)
		return provider.ToolResultBlock{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool execution error: unknown tool %q", call.Name),
			IsError:    true,
		}
	}

	description := approval.Describe(tool, call.Input)
	logging.Logger().Info("tool call start", "tool", call.Name, "tool_call_id", call.ID)

	result, err := approval.ExecuteTool(ctx, approver, tool, call.Input, description)
	duration := time.Since(started)
	if err != nil {
		logging.Logger().Warn("tool call failed", "tool", call.Name, "tool_call_id", call.ID, "duration_ms", duration.Milliseconds(), "err", err)
		return provider.ToolResultBlock{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("tool execution error: %v", err),
			IsError:    true,
		}
	}

	logging.Logger().Info("tool call complete", "tool", call.Name, "tool_call_id", call.ID, "duration_ms", duration.Milliseconds(), slog.Bool("truncated", result.Truncated))
	return provider.ToolResultBlock{ToolCallID: call.ID, Content: result.Output}
}

func sumUsage(total, next provider.TokenUsage) provider.TokenUsage {
	total.InputTokens += next.InputTokens
	total.OutputTokens += next.OutputTokens
	total.CacheWriteTokens += next.CacheWriteTokens
	total.CacheReadTokens += next.CacheReadTokens
	total.TotalTokens += next.TotalTokens
	return total
}
