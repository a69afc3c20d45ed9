package costs

import (
	"context"
	"time"

	"github.com/blufio/blufio/internal/storage"
)

// Record is one priced usage event, ready for SQLite-backed ledger persistence.
type Record struct {
	SessionID string
	Provider  string
	Model     string
	Feature   string
	Usage     Usage
	CostUSD   float64
}

// Tracker persists cost records to the SQLite ledger and answers budget
// queries.
type Tracker struct {
	store *storage.Store
}

// NewTracker wraps a storage handle as a cost ledger.
func NewTracker(store *storage.Store) *Tracker {
	return &Tracker{store: store}
}

// Append writes one record to the ledger. The ledger never rejects a
// record for an unrecognized model; pricing.RateFor already guarantees a
// fallback rate was used to compute CostUSD before Append is called.
func (t *Tracker) Append(ctx context.Context, r Record) error {
	return t.store.InsertCostRecord(ctx, storage.CostRecord{
		SessionID:        r.SessionID,
		Provider:         r.Provider,
		Model:            r.Model,
		Feature:          r.Feature,
		InputTokens:      r.Usage.InputTokens,
		OutputTokens:     r.Usage.OutputTokens,
		CacheWriteTokens: r.Usage.CacheWriteTokens,
		CacheReadTokens:  r.Usage.CacheReadTokens,
		CostUSD:          r.CostUSD,
	})
}

// Spend returns today's and this month's aggregated spend.
func (t *Tracker) Spend(ctx context.Context, now time.Time) (storage.Spend, error) {
	return t.store.Spend(ctx, now)
}

// BudgetStatus is the outcome of a pre-call budget check.
type BudgetStatus int

const (
	// BudgetOK means the call may proceed at its normal tier.
	BudgetOK BudgetStatus = iota
	// BudgetWarnDownshift means spend has crossed the warn threshold and
	// the router should downshift one model tier.
	BudgetWarnDownshift
	// BudgetDenied means a hard limit has been reached; the turn must not execute.
	BudgetDenied
)

// CheckBudget compares today's and this month's spend, plus the estimated
// cost of the call about to be made, against configured limits, returning
// the most severe applicable status. A request is allowed only if
// spent+estimated stays within both caps, and a cap that recorded spend has
// already reached denies even when estimated is 0; estimated may be 0 when
// the caller only wants the current-spend status (e.g. for tier downshift)
// rather than a pre-call affordability check.
func CheckBudget(spend storage.Spend, estimated, dailyLimit, monthlyLimit, warnThresholdPct float64) BudgetStatus {
	if dailyLimit > 0 && (spend.TodayUSD >= dailyLimit || spend.TodayUSD+estimated > dailyLimit) {
		return BudgetDenied
	}
	if monthlyLimit > 0 && (spend.MonthUSD >= monthlyLimit || spend.MonthUSD+estimated > monthlyLimit) {
		return BudgetDenied
	}
	if dailyLimit > 0 && spend.TodayUSD >= dailyLimit*warnThresholdPct {
		return BudgetWarnDownshift
	}
	if monthlyLimit > 0 && spend.MonthUSD >= monthlyLimit*warnThresholdPct {
		return BudgetWarnDownshift
	}
	return BudgetOK
}

// EstimateCallCostUSD returns a conservative upper-bound cost for a call to
// model that may emit up to maxOutputTokens, priced as if every token were
// output (the most expensive class) and ignoring that the call also costs
// some input tokens. Used to pre-flight the budget check against a turn
// that hasn't been assembled yet, so the true token counts aren't known.
func EstimateCallCostUSD(model string, maxOutputTokens int) float64 {
	return Calculate(model, Usage{OutputTokens: maxOutputTokens})
}
