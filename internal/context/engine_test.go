package context

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/blufio/blufio/internal/provider"
)

type stubProvider struct {
	content string
	usage   provider.TokenUsage
	err     error
}

func (s stubProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &provider.ChatResponse{Content: s.content, Usage: s.usage}, nil
}

type stubConditionalProvider struct {
	name  string
	block string
}

func (s stubConditionalProvider) Name() string { return s.name }
func (s stubConditionalProvider) ProvideContext(ctx context.Context) (string, error) {
	return s.block, nil
}

func TestStaticZoneDefaultsWhenUnconfigured(t *testing.T) {
	z := NewStaticZone("", "")
	prompt, err := z.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if prompt != DefaultSystemPrompt {
		t.Fatalf("got %q, want default prompt", prompt)
	}
}

func TestStaticZoneInlineOverridesDefault(t *testing.T) {
	z := NewStaticZone("", "be terse")
	prompt, err := z.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if prompt != "be terse" {
		t.Fatalf("got %q, want inline prompt", prompt)
	}
}

func TestConditionalZoneJoinsNonEmptyBlocksOnly(t *testing.T) {
	z := NewConditionalZone(
		stubConditionalProvider{name: "a", block: "block a"},
		stubConditionalProvider{name: "b", block: ""},
		stubConditionalProvider{name: "c", block: "block c"},
	)
	out, err := z.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "block a\n\nblock c" {
		t.Fatalf("got %q", out)
	}
}

func TestDynamicZoneSkipsCompactionUnderThreshold(t *testing.T) {
	z := NewDynamicZone(1_000_000, 5, stubProvider{}, "haiku")
	history := []provider.ChatMessage{
		{Role: provider.RoleUser, Content: "hi"},
		{Role: provider.RoleAssistant, Content: "hello"},
	}
	outcome, err := z.CompactIfNeeded(context.Background(), history)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if outcome.Ran {
		t.Fatal("expected compaction to be skipped below threshold")
	}
	if len(outcome.Messages) != len(history) {
		t.Fatalf("expected history untouched, got %d messages", len(outcome.Messages))
	}
}

func TestDynamicZoneCompactsAndKeepsRecentTail(t *testing.T) {
	summarizer := stubProvider{content: "condensed summary", usage: provider.TokenUsage{InputTokens: 50, OutputTokens: 10}}
	z := NewDynamicZone(1, 2, summarizer, "haiku")

	history := []provider.ChatMessage{
		{Role: provider.RoleUser, Content: "turn one, quite long indeed"},
		{Role: provider.RoleAssistant, Content: "reply one"},
		{Role: provider.RoleUser, Content: "turn two"},
		{Role: provider.RoleAssistant, Content: "reply two"},
	}

	outcome, err := z.CompactIfNeeded(context.Background(), history)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if !outcome.Ran {
		t.Fatal("expected compaction to run above threshold")
	}
	if outcome.Usage.InputTokens != 50 {
		t.Fatalf("expected compaction usage to be surfaced, got %+v", outcome.Usage)
	}
	if !strings.Contains(outcome.Messages[0].Content, "condensed summary") {
		t.Fatalf("expected synthetic summary message first, got %+v", outcome.Messages[0])
	}
	last := outcome.Messages[len(outcome.Messages)-1]
	if last.Content != "reply two" {
		t.Fatalf("expected recent tail preserved, got %+v", last)
	}
}

func TestDynamicZonePropagatesSummarizerError(t *testing.T) {
	z := NewDynamicZone(1, 1, stubProvider{err: errors.New("provider down")}, "haiku")
	history := []provider.ChatMessage{
		{Role: provider.RoleUser, Content: "first message here"},
		{Role: provider.RoleAssistant, Content: "second message here"},
		{Role: provider.RoleUser, Content: "third message here"},
	}
	if _, err := z.CompactIfNeeded(context.Background(), history); err == nil {
		t.Fatal("expected summarizer error to propagate")
	}
}

func TestEngineAssembleComposesZonesWithoutCallingProviderForTheTurn(t *testing.T) {
	static := NewStaticZone("", "system prompt")
	conditional := NewConditionalZone(stubConditionalProvider{name: "memory", block: "Relevant memories:\n- likes go"})
	engine := NewEngine(static, conditional, nil)

	history := []provider.ChatMessage{{Role: provider.RoleUser, Content: "hello"}}
	assembled, err := engine.Assemble(context.Background(), history, nil, "claude-sonnet-4", 1024)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if assembled.CompactionRan {
		t.Fatal("expected no compaction with nil dynamic zone")
	}
	if !strings.Contains(assembled.Request.System, "system prompt") || !strings.Contains(assembled.Request.System, "likes go") {
		t.Fatalf("expected system prompt to include both zones, got %q", assembled.Request.System)
	}
	if len(assembled.Request.Messages) != 1 {
		t.Fatalf("expected history passed through unchanged, got %d messages", len(assembled.Request.Messages))
	}
}
