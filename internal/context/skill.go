package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/blufio/blufio/internal/tools"
)

// SkillProvider lists the registry's available tools as a conditional
// context block, capped so a large registry never crowds out the dynamic
// zone.
type SkillProvider struct {
	registry *tools.Registry
	maxDesc  int
}

// NewSkillProvider caps the listing at maxDesc entries (<=0 means
// unlimited).
func NewSkillProvider(registry *tools.Registry, maxDesc int) *SkillProvider {
	return &SkillProvider{registry: registry, maxDesc: maxDesc}
}

func (p *SkillProvider) Name() string { return "skill" }

// ProvideContext renders "name: description" for each tool, truncated to
// maxDesc with a "... and N more tools available" trailer.
func (p *SkillProvider) ProvideContext(_ context.Context) (string, error) {
	all := p.registry.Tools()
	if len(all) == 0 {
		return "", nil
	}

	limit := len(all)
	if p.maxDesc > 0 && p.maxDesc < limit {
		limit = p.maxDesc
	}

	var b strings.Builder
	b.WriteString("## Available Tools\n")
	for _, t := range all[:limit] {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}
	if remaining := len(all) - limit; remaining > 0 {
		fmt.Fprintf(&b, "… and %d more tools available\n", remaining)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
