package context

import (
	"context"
	"fmt"

	"github.com/blufio/blufio/internal/provider"
)

// AssembledContext is the result of one assemble() call: a provider request
// ready for the caller to execute, plus whatever compaction cost was
// incurred while building it. The engine never talks to a provider for the
// turn itself, only (optionally) for compaction.
type AssembledContext struct {
	Request         provider.ChatRequest
	CompactionRan   bool
	CompactionUsage provider.TokenUsage
}

// Engine composes the static, conditional, and dynamic zones into a single
// provider request per turn.
type Engine struct {
	static      *StaticZone
	conditional *ConditionalZone
	dynamic     *DynamicZone
}

// NewEngine builds a context engine from its three zones. dynamic may be
// nil, in which case no compaction is attempted.
func NewEngine(static *StaticZone, conditional *ConditionalZone, dynamic *DynamicZone) *Engine {
	return &Engine{static: static, conditional: conditional, dynamic: dynamic}
}

// Assemble renders all three zones and returns a ChatRequest for the caller
// to send to a provider. It never calls a provider for the turn itself;
// compaction, if it runs, is the one exception and its usage is reported
// back separately so the caller can record it under its own feature tag.
func (e *Engine) Assemble(ctx context.Context, history []provider.ChatMessage, tools []provider.ToolDefinition, model string, maxTokens int) (*AssembledContext, error) {
	systemPrompt, err := e.static.Render()
	if err != nil {
		return nil, fmt.Errorf("render static zone: %w", err)
	}

	conditionalBlock, err := e.conditional.Render(ctx)
	if err != nil {
		return nil, fmt.Errorf("render conditional zone: %w", err)
	}
	if conditionalBlock != "" {
		systemPrompt = systemPrompt + "\n\n" + conditionalBlock
	}

	messages := history
	result := &AssembledContext{}
	if e.dynamic != nil {
		outcome, err := e.dynamic.CompactIfNeeded(ctx, history)
		if err != nil {
			return nil, fmt.Errorf("compact history: %w", err)
		}
		messages = outcome.Messages
		result.CompactionRan = outcome.Ran
		result.CompactionUsage = outcome.Usage
	}

	result.Request = provider.ChatRequest{
		System:    systemPrompt,
		Messages:  messages,
		Tools:     tools,
		Model:     model,
		MaxTokens: maxTokens,
	}
	return result, nil
}
