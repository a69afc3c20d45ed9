// Package provider abstracts the LLM backend behind a small capability
// interface so the session actor and context engine never depend on a
// specific vendor SDK.
package provider

import "context"

// Role is a chat message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultBlock is one tool's result fed back to the model.
type ToolResultBlock struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ChatMessage is one turn in a conversation, possibly carrying tool calls
// or tool results alongside plain text.
type ChatMessage struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResultBlock
	// CacheBreakpoint marks this message as an ephemeral prompt-cache
	// boundary when the provider supports it.
	CacheBreakpoint bool
}

// ToolDefinition is one tool's LLM-facing schema.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TokenUsage is the accounting returned alongside a completion.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
	TotalTokens      int
	// CostUSD is set when the provider reports cost directly (e.g. an
	// aggregator API); nil means the caller must price it itself.
	CostUSD *float64
}

// ChatResponse is one completion from the model: either a final text
// answer or a set of tool calls to execute before continuing the loop.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
	StopTool  bool
}

// ChatRequest is everything needed to make one provider call.
type ChatRequest struct {
	System   string
	Messages []ChatMessage
	Tools    []ToolDefinition
	Model    string
	MaxTokens int
}

// Provider is the capability every LLM backend implements.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Tier names the three model sizes the router selects between.
type Tier string

const (
	TierHaiku  Tier = "haiku"
	TierSonnet Tier = "sonnet"
	TierOpus   Tier = "opus"
)
