// Package costs implements the pricing table and cost ledger: every LLM
// call is priced before it is recorded, and the ledger never silently drops
// a record for an unrecognized model.
package costs

import "strings"

// Rate is per-million-token USD pricing for one model, split by the four
// token classes Anthropic bills separately.
type Rate struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

// pricingTable holds the known rates as of this build. Anything not listed
// here falls back to the Sonnet tier rather than being dropped, matching
// the cost ledger invariant that no usage ever goes unrecorded.
var pricingTable = map[string]Rate{
	"opus":   {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00, CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08},
}

// RateFor resolves a model name to its pricing tier, always returning a
// rate: model names are matched by substring against known tiers, and any
// unrecognized model falls back to the Sonnet rate.
func RateFor(model string) Rate {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus"):
		return pricingTable["opus"]
	case strings.Contains(m, "haiku"):
		return pricingTable["haiku"]
	default:
		return pricingTable["sonnet"]
	}
}

// Usage is the token accounting for one provider call.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
}

// Calculate returns the USD cost of usage at model's rate.
func Calculate(model string, usage Usage) float64 {
	rate := RateFor(model)
	const million = 1_000_000.0
	return float64(usage.InputTokens)*rate.InputPerMTok/million +
		float64(usage.OutputTokens)*rate.OutputPerMTok/million +
		float64(usage.CacheWriteTokens)*rate.CacheWritePerMTok/million +
		float64(usage.CacheReadTokens)*rate.CacheReadPerMTok/million
}
