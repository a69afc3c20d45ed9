package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blufio/blufio/internal/memory"
	"github.com/blufio/blufio/internal/storage"
)

// MemoryWriter narrows memory.Writer to the two lifecycle mutations spec.md
// reserves for an explicit call rather than automatic inference: marking a
// memory forgotten, and marking it superseded by a freshly written fact.
type MemoryWriter interface {
	Forget(ctx context.Context, id string) error
	Supersede(ctx context.Context, sessionID, oldID, newContent string, source memory.Source) (string, error)
}

// MemoryFinder resolves a forget/supersede target against the active
// memory set.
type MemoryFinder interface {
	ActiveMemories(ctx context.Context) ([]storage.MemoryRow, error)
}

// MemoryTool lets the model (acting on an explicit operator request) forget
// a stored memory or mark it superseded by a corrected fact. It never runs
// on its own initiative; extraction and retrieval never call it.
type MemoryTool struct {
	Writer MemoryWriter
	Finder MemoryFinder
}

func (t MemoryTool) Name() string { return "memory" }

func (t MemoryTool) Description() string {
	return "Forget a stored long-term memory, or mark it superseded by a corrected fact. " +
		"Only use this when the user explicitly asks to forget or correct something remembered about them. " +
		"Target matches an exact memory id or, failing that, the first active memory whose content contains the given text."
}

func (t MemoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{"forget", "supersede"},
			},
			"target":      map[string]any{"type": "string", "description": "Memory id, or a text fragment to fuzzy-match against memory content"},
			"replacement": map[string]any{"type": "string", "description": "New fact text; required for supersede"},
		},
		"required": []string{"action", "target"},
	}
}

func (t MemoryTool) Permission() Permission { return RequiresApproval }

func (t MemoryTool) SummarizeArgs(args map[string]any) string {
	action, _ := args["action"].(string)
	target, _ := args["target"].(string)
	return fmt.Sprintf("memory %s: %s", action, target)
}

func (t MemoryTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if t.Writer == nil || t.Finder == nil {
		return nil, errors.New("memory: memory store is not enabled")
	}

	action, _ := args["action"].(string)
	target, _ := args["target"].(string)
	if strings.TrimSpace(target) == "" {
		return nil, errors.New("memory: target is required")
	}

	id, content, err := t.resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	switch action {
	case "forget":
		if err := t.Writer.Forget(ctx, id); err != nil {
			return nil, fmt.Errorf("forget memory: %w", err)
		}
		return &ToolResult{Output: fmt.Sprintf("forgot memory %s (%q)", id, content)}, nil
	case "supersede":
		replacement, _ := args["replacement"].(string)
		if strings.TrimSpace(replacement) == "" {
			return nil, errors.New("memory: replacement is required for supersede")
		}
		newID, err := t.Writer.Supersede(ctx, "", id, replacement, memory.SourceExplicit)
		if err != nil {
			return nil, fmt.Errorf("supersede memory: %w", err)
		}
		return &ToolResult{Output: fmt.Sprintf("superseded memory %s with %s (%q)", id, newID, replacement)}, nil
	default:
		return nil, fmt.Errorf("memory: unsupported action %q", action)
	}
}

// resolve matches target against an exact memory id first, then falls back
// to the first active memory whose content contains target as a
// case-insensitive substring, per spec.md's "matches memories by ID or
// fuzzy content" forget contract.
func (t MemoryTool) resolve(ctx context.Context, target string) (id, content string, err error) {
	active, err := t.Finder.ActiveMemories(ctx)
	if err != nil {
		return "", "", fmt.Errorf("list active memories: %w", err)
	}
	for _, m := range active {
		if m.ID == target {
			return m.ID, m.Content, nil
		}
	}
	lower := strings.ToLower(target)
	for _, m := range active {
		if strings.Contains(strings.ToLower(m.Content), lower) {
			return m.ID, m.Content, nil
		}
	}
	return "", "", fmt.Errorf("memory: no active memory found matching %q", target)
}
