// Package router implements the zero-latency, deterministic message
// classifier that selects a model tier for each turn and applies
// budget-aware downshifting.
package router

import (
	"regexp"
	"strings"

	"github.com/blufio/blufio/internal/costs"
	"github.com/blufio/blufio/internal/provider"
)

// Complexity is the heuristic classification tier for one inbound message.
type Complexity string

const (
	ComplexityTrivial Complexity = "trivial"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// modelOverridePattern matches a leading "@haiku"/"@sonnet"/"@opus" token.
var modelOverridePattern = regexp.MustCompile(`(?i)^@(haiku|sonnet|opus)\b\s*`)

// complexSignals are substrings whose presence escalates a message to the
// complex tier: multi-step reasoning, code, or explicit tool use requests.
var complexSignals = []string{
	"```", "write a", "refactor", "debug", "analyze", "design", "implement",
	"step by step", "compare", "research",
}

// mediumSignals escalate a trivial message to medium when present.
var mediumSignals = []string{"?", "how", "why", "explain", "what is", "summarize"}

// StripModelOverride extracts and removes a leading "@model" token, per the
// binding decision that such a token is a literal command the user typed.
func StripModelOverride(text string) (stripped string, tier provider.Tier, overridden bool) {
	match := modelOverridePattern.FindStringSubmatch(text)
	if match == nil {
		return text, "", false
	}
	stripped = modelOverridePattern.ReplaceAllString(text, "")
	switch strings.ToLower(match[1]) {
	case "haiku":
		return stripped, provider.TierHaiku, true
	case "opus":
		return stripped, provider.TierOpus, true
	default:
		return stripped, provider.TierSonnet, true
	}
}

// Classify assigns a complexity tier to message text using fast, fully
// deterministic heuristics: length, code fences, and keyword signals. It
// never calls the network and never blocks.
func Classify(text string) Complexity {
	lower := strings.ToLower(text)
	wordCount := len(strings.Fields(text))

	for _, s := range complexSignals {
		if strings.Contains(lower, s) {
			return ComplexityComplex
		}
	}
	if wordCount > 60 {
		return ComplexityComplex
	}

	for _, s := range mediumSignals {
		if strings.Contains(lower, s) {
			return ComplexityMedium
		}
	}
	if wordCount > 12 {
		return ComplexityMedium
	}

	return ComplexityTrivial
}

// TierFor maps a complexity classification to a default model tier.
func TierFor(c Complexity) provider.Tier {
	switch c {
	case ComplexityComplex:
		return provider.TierOpus
	case ComplexityMedium:
		return provider.TierSonnet
	default:
		return provider.TierHaiku
	}
}

// Downshift drops a tier by one step (opus->sonnet->haiku), staying at
// haiku if already there.
func Downshift(tier provider.Tier) provider.Tier {
	switch tier {
	case provider.TierOpus:
		return provider.TierSonnet
	case provider.TierSonnet:
		return provider.TierHaiku
	default:
		return provider.TierHaiku
	}
}

// SelectTier runs the full selection pipeline: explicit "@model" override
// wins outright; otherwise classify and apply budget-aware downshift.
func SelectTier(text string, budget costs.BudgetStatus) (stripped string, tier provider.Tier) {
	stripped, tier, overridden := StripModelOverride(text)
	if overridden {
		return stripped, tier
	}

	tier = TierFor(Classify(stripped))
	if budget == costs.BudgetWarnDownshift {
		tier = Downshift(tier)
	}
	return stripped, tier
}
