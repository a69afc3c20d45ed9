package provider

import "fmt"

// TierModels maps the three router tiers to concrete Anthropic model names,
// resolved once from config at startup.
type TierModels struct {
	Haiku  string
	Sonnet string
	Opus   string
}

// ModelFor resolves a tier to its configured model name, falling back to
// Sonnet for an unrecognized tier rather than erroring.
func (t TierModels) ModelFor(tier Tier) string {
	switch tier {
	case TierHaiku:
		return t.Haiku
	case TierOpus:
		return t.Opus
	default:
		return t.Sonnet
	}
}

// NewProviderFromConfig builds the Anthropic provider from resolved settings.
func NewProviderFromConfig(apiKey, defaultModel string, maxTokens int) (Provider, error) {
	p, err := NewAnthropicProvider(apiKey, defaultModel, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("build anthropic provider: %w", err)
	}
	return p, nil
}
