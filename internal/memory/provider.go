package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Provider implements the context engine's ConditionalProvider contract: the
// Session Actor sets the current turn's query before assembling context,
// the context engine calls ProvideContext, and the query is cleared again
// once the turn completes.
type Provider struct {
	retriever *Retriever
	topK      int

	mu    sync.Mutex
	query string
}

// NewProvider builds a memory-backed conditional context provider.
func NewProvider(retriever *Retriever, topK int) *Provider {
	return &Provider{retriever: retriever, topK: topK}
}

// SetCurrentQuery records the text the Session Actor wants memory search
// scoped to for this turn.
func (p *Provider) SetCurrentQuery(query string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = query
}

// ClearCurrentQuery resets the per-turn query after context assembly.
func (p *Provider) ClearCurrentQuery() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = ""
}

// CurrentQuery returns the query set for this turn, if any.
func (p *Provider) CurrentQuery() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query, p.query != ""
}

// Name identifies this provider in the conditional zone's ordered list.
func (p *Provider) Name() string { return "memory" }

// ProvideContext renders the top-K relevant memories as a single context
// block, or returns empty when no query is set or nothing is relevant.
func (p *Provider) ProvideContext(ctx context.Context) (string, error) {
	query, ok := p.CurrentQuery()
	if !ok {
		return "", nil
	}

	results, err := p.retriever.Search(ctx, query, p.topK)
	if err != nil {
		return "", fmt.Errorf("search memories: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Memory.Content)
	}
	return b.String(), nil
}
