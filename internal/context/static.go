// Package context implements the three-zone context engine: a static
// system prompt zone, a conditional zone of pluggable providers (memory,
// skills), and a dynamic conversation-history zone with compaction.
package context

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSystemPrompt is used when no file or inline prompt is configured.
const DefaultSystemPrompt = "You are Blufio, a personal AI agent. Be direct, accurate, and economical with the user's time and money."

// StaticZone renders the system prompt, preferring a configured file over
// an inline string over the built-in default.
type StaticZone struct {
	promptFile string
	inline     string
}

// NewStaticZone builds a StaticZone from config-level sources.
func NewStaticZone(promptFile, inline string) *StaticZone {
	return &StaticZone{promptFile: promptFile, inline: inline}
}

// Render loads the active system prompt: file content takes priority, then
// the inline string, then the built-in default.
func (z *StaticZone) Render() (string, error) {
	if z.promptFile != "" {
		data, err := os.ReadFile(z.promptFile)
		if err != nil {
			return "", fmt.Errorf("load system prompt file %s: %w", z.promptFile, err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, nil
		}
	}
	if strings.TrimSpace(z.inline) != "" {
		return z.inline, nil
	}
	return DefaultSystemPrompt, nil
}
