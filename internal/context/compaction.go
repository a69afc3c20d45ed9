package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/blufio/blufio/internal/provider"
)

// CompactionPrompt instructs the summarization model to compress older
// turns into a single synthetic assistant message.
const CompactionPrompt = `Summarize the conversation so far in a few dense paragraphs, preserving names, decisions, open tasks, and anything the user would be annoyed to have to repeat. Drop small talk and resolved tool mechanics.`

// estimateTokens is a cheap, deterministic stand-in for a tokenizer:
// roughly four characters per token, which is close enough for a
// threshold check and never requires a network call.
func estimateTokens(messages []provider.ChatMessage) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Name) + 32
		}
		for _, tr := range m.ToolResults {
			chars += len(tr.Content)
		}
	}
	return chars / 4
}

// DynamicZone holds the conversation history and compacts it when it grows
// past a token threshold, keeping a tail of the most recent messages intact.
type DynamicZone struct {
	thresholdTokens int
	recentTail      int
	summarizer      provider.Provider
	summaryModel    string
}

// NewDynamicZone builds a DynamicZone. summarizer is typically a cheap/Haiku
// tier provider since compaction itself is priced and logged under its own
// "compaction" feature tag.
func NewDynamicZone(thresholdTokens, recentTail int, summarizer provider.Provider, summaryModel string) *DynamicZone {
	if recentTail <= 0 {
		recentTail = 20
	}
	return &DynamicZone{
		thresholdTokens: thresholdTokens,
		recentTail:      recentTail,
		summarizer:      summarizer,
		summaryModel:    summaryModel,
	}
}

// CompactionOutcome reports whether compaction ran and, if so, the usage it
// consumed so the caller can record it separately under feature=compaction.
type CompactionOutcome struct {
	Ran      bool
	Messages []provider.ChatMessage
	Usage    provider.TokenUsage
}

// CompactIfNeeded summarizes everything before the most recent recentTail
// messages into one synthetic assistant message, if the estimated token count
// reaches or exceeds the configured threshold. It never mutates messages in place.
func (z *DynamicZone) CompactIfNeeded(ctx context.Context, messages []provider.ChatMessage) (CompactionOutcome, error) {
	if z.thresholdTokens <= 0 || estimateTokens(messages) < z.thresholdTokens {
		return CompactionOutcome{Messages: messages}, nil
	}
	if len(messages) <= z.recentTail {
		return CompactionOutcome{Messages: messages}, nil
	}

	cut := len(messages) - z.recentTail
	cut = recentStartOnUserBoundary(messages, cut)
	older, recent := messages[:cut], messages[cut:]
	if len(older) == 0 {
		return CompactionOutcome{Messages: messages}, nil
	}

	transcript := buildSummaryTranscript(older)
	resp, err := z.summarizer.Chat(ctx, provider.ChatRequest{
		System: CompactionPrompt,
		Model:  z.summaryModel,
		Messages: []provider.ChatMessage{
			{Role: provider.RoleUser, Content: transcript},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return CompactionOutcome{}, fmt.Errorf("generate compaction summary: %w", err)
	}

	summaryMsg := provider.ChatMessage{
		Role:    provider.RoleAssistant,
		Content: "Summary of earlier conversation:\n" + resp.Content,
	}
	out := make([]provider.ChatMessage, 0, 1+len(recent))
	out = append(out, summaryMsg)
	out = append(out, recent...)

	return CompactionOutcome{Ran: true, Messages: out, Usage: resp.Usage}, nil
}

// recentStartOnUserBoundary nudges cut forward to the next RoleUser message
// so compaction never splits a tool_use/tool_result round in half, which
// would produce an invalid message sequence for the provider.
func recentStartOnUserBoundary(messages []provider.ChatMessage, cut int) int {
	for cut < len(messages) && messages[cut].Role != provider.RoleUser {
		cut++
	}
	return cut
}

func buildSummaryTranscript(messages []provider.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
