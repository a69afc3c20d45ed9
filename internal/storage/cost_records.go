package storage

import (
	"context"
	"fmt"
	"time"
)

// CostRecord is one priced LLM call.
type CostRecord struct {
	SessionID        string
	Provider         string
	Model            string
	Feature          string
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
	CostUSD          float64
}

// InsertCostRecord appends one ledger entry. The ledger is append-only:
// there is no update or delete path, matching the audit requirement that a
// cost record, once written, is never altered.
func (s *Store) InsertCostRecord(ctx context.Context, r CostRecord) error {
	if r.Feature == "" {
		r.Feature = "chat"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_records (session_id, provider, model, feature, input_tokens, output_tokens, cache_write_tokens, cache_read_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.SessionID, r.Provider, r.Model, r.Feature, r.InputTokens, r.OutputTokens, r.CacheWriteTokens, r.CacheReadTokens, r.CostUSD, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

// Spend is the aggregated spend for the current day and calendar month, in
// the server's local time zone.
type Spend struct {
	TodayUSD float64
	MonthUSD float64
}

// SpendSince sums cost_usd for records created at or after the given time.
func (s *Store) SpendSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM cost_records WHERE created_at >= ?`,
		since.UTC().Format(time.RFC3339Nano)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum spend since %s: %w", since, err)
	}
	return total, nil
}

// CountCostRecords returns the total number of ledger entries, mainly
// useful in tests asserting that a denied turn never appended a record.
func (s *Store) CountCostRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cost_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cost records: %w", err)
	}
	return n, nil
}

// Spend returns today's and this month's aggregated spend as of now.
func (s *Store) Spend(ctx context.Context, now time.Time) (Spend, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	today, err := s.SpendSince(ctx, dayStart)
	if err != nil {
		return Spend{}, err
	}
	month, err := s.SpendSince(ctx, monthStart)
	if err != nil {
		return Spend{}, err
	}
	return Spend{TodayUSD: today, MonthUSD: month}, nil
}
