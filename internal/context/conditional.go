package context

import "context"

// ConditionalProvider supplies an optional block of context for the
// current turn. The conditional zone calls every registered provider in
// order and concatenates whatever non-empty text they return.
type ConditionalProvider interface {
	Name() string
	ProvideContext(ctx context.Context) (string, error)
}

// ConditionalZone holds the ordered list of pluggable providers (memory,
// tool/skill listing, ...).
type ConditionalZone struct {
	providers []ConditionalProvider
}

// NewConditionalZone builds a zone from an ordered provider list.
func NewConditionalZone(providers ...ConditionalProvider) *ConditionalZone {
	return &ConditionalZone{providers: providers}
}

// Render calls every provider and joins their non-empty output with blank
// lines, preserving provider order.
func (z *ConditionalZone) Render(ctx context.Context) (string, error) {
	var blocks []string
	for _, p := range z.providers {
		block, err := p.ProvideContext(ctx)
		if err != nil {
			return "", err
		}
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return joinBlocks(blocks), nil
}

func joinBlocks(blocks []string) string {
	out := ""
	for i, b := range blocks {
		if i > 0 {
			out += "\n\n"
		}
		out += b
	}
	return out
}
