package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blufio/blufio/internal/approval"
	blufiocontext "github.com/blufio/blufio/internal/context"
	"github.com/blufio/blufio/internal/costs"
	"github.com/blufio/blufio/internal/memory"
	"github.com/blufio/blufio/internal/provider"
	"github.com/blufio/blufio/internal/storage"
	"github.com/blufio/blufio/internal/tools"
)

type fakeProvider struct {
	replies []string
	calls   int
}

func (f *fakeProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	i := f.calls
	f.calls++
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return &provider.ChatResponse{
		Content: f.replies[i],
		Usage:   provider.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.Open(context.Background(), filepath.Join(dir, "test.db"), 5*time.Second)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRunner(t *testing.T, replies []string) (*Runner, *storage.Store) {
	t.Helper()
	store := openTestStore(t)

	engine := blufiocontext.NewEngine(
		blufiocontext.NewStaticZone("", "be terse"),
		blufiocontext.NewConditionalZone(),
		nil,
	)

	runner := &Runner{
		Store:         store,
		Provider:      &fakeProvider{replies: replies},
		Registry:      tools.NewRegistry(),
		Approver:      approval.AutoApprover{},
		Engine:        engine,
		CostTracker:   costs.NewTracker(store),
		Models:        provider.TierModels{Haiku: "claude-haiku", Sonnet: "claude-sonnet", Opus: "claude-opus"},
		MaxTokens:     1024,
		MaxToolRounds: 5,
		CostProvider:  "anthropic",
	}
	return runner, store
}

func TestRunTurnPersistsHistoryAndRecordsCost(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, []string{"hello there"})

	if _, err := store.CreateSession(ctx, "sess-1", "cli", "local-user"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	result, err := runner.RunTurn(ctx, "sess-1", "hi")
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.Reply != "hello there" {
		t.Fatalf("got reply %q", result.Reply)
	}

	messages, err := store.GetMessagesForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user+assistant persisted, got %d messages", len(messages))
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %q, %q", messages[0].Role, messages[1].Role)
	}

	spend, err := store.Spend(ctx, time.Now())
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if spend.TodayUSD <= 0 {
		t.Fatal("expected a nonzero cost to be recorded for this turn")
	}
}

func TestRunTurnBlocksWhenDailyBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, []string{"should not be reached"})
	runner.Budget = BudgetLimits{DailyUSD: 0.0000001, WarnThresholdPct: 0.8}

	if _, err := store.CreateSession(ctx, "sess-1", "cli", "local-user"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.InsertCostRecord(ctx, storage.CostRecord{SessionID: "sess-1", Provider: "anthropic", Model: "claude-sonnet", CostUSD: 1.00}); err != nil {
		t.Fatalf("seed spend: %v", err)
	}

	result, err := runner.RunTurn(ctx, "sess-1", "hi")
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if !result.Blocked {
		t.Fatal("expected turn to be blocked by the exhausted daily budget")
	}
}

// TestRunTurnBlocksWhenEstimatedCostWouldCrossDailyCap covers the case
// where today's recorded spend alone is still under the daily cap, but
// adding the estimated cost of the pending call would cross it — the turn
// must be denied before the provider is ever called, matching the spec's
// "spent_today + estimated ≤ daily_cap" budget invariant.
func TestRunTurnBlocksWhenEstimatedCostWouldCrossDailyCap(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, []string{"should not be reached"})
	runner.Budget = BudgetLimits{DailyUSD: 0.01, WarnThresholdPct: 0.8}

	if _, err := store.CreateSession(ctx, "sess-1", "cli", "local-user"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := store.InsertCostRecord(ctx, storage.CostRecord{SessionID: "sess-1", Provider: "anthropic", Model: "claude-sonnet", CostUSD: 0.0099}); err != nil {
		t.Fatalf("seed spend: %v", err)
	}

	before, err := store.CountCostRecords(ctx)
	if err != nil {
		t.Fatalf("count cost records: %v", err)
	}

	result, err := runner.RunTurn(ctx, "sess-1", "hi")
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if !result.Blocked {
		t.Fatal("expected turn to be blocked: spend + estimated call cost crosses the daily cap")
	}

	after, err := store.CountCostRecords(ctx)
	if err != nil {
		t.Fatalf("count cost records: %v", err)
	}
	if after != before {
		t.Fatalf("expected no new CostRecord for a denied turn, had %d now have %d", before, after)
	}
}

// TestExtractMemoriesWritesReturnedFacts covers the extraction pipeline end
// to end: the extraction model's reply is parsed into facts and each one
// lands in the memory store via Writer.Remember, closing the gap where
// extraction used to only log that its cadence had been reached.
func TestExtractMemoriesWritesReturnedFacts(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, []string{"ignored"})
	runner.MemoryWriter = memory.NewWriter(store, nil, 0.92)
	runner.ExtractProvider = &fakeProvider{replies: []string{"- likes dark roast coffee\n- works on the Blufio project"}}
	runner.ExtractModel = "claude-haiku"

	if _, err := store.CreateSession(ctx, "sess-1", "cli", "local-user"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	history := []provider.ChatMessage{
		{Role: provider.RoleUser, Content: "I like dark roast coffee and I'm working on the Blufio project"},
	}
	runner.extractMemories(ctx, "sess-1", history)

	active, err := store.ActiveMemories(ctx)
	if err != nil {
		t.Fatalf("active memories: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 extracted memories, got %d: %+v", len(active), active)
	}
}

// TestExtractMemoriesNoneWritesNothing covers the case where the extraction
// model finds nothing worth keeping.
func TestExtractMemoriesNoneWritesNothing(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, []string{"ignored"})
	runner.MemoryWriter = memory.NewWriter(store, nil, 0.92)
	runner.ExtractProvider = &fakeProvider{replies: []string{"NONE"}}
	runner.ExtractModel = "claude-haiku"

	if _, err := store.CreateSession(ctx, "sess-1", "cli", "local-user"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	history := []provider.ChatMessage{{Role: provider.RoleUser, Content: "hey"}}
	runner.extractMemories(ctx, "sess-1", history)

	active, err := store.ActiveMemories(ctx)
	if err != nil {
		t.Fatalf("active memories: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no memories written for a NONE response, got %d", len(active))
	}
}

func TestRunTurnAppliesModelOverride(t *testing.T) {
	ctx := context.Background()
	runner, store := newTestRunner(t, []string{"ack"})
	if _, err := store.CreateSession(ctx, "sess-1", "cli", "local-user"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := runner.RunTurn(ctx, "sess-1", "@opus do something complicated"); err != nil {
		t.Fatalf("run turn: %v", err)
	}

	messages, err := store.GetMessagesForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if messages[0].Content != "do something complicated" {
		t.Fatalf("expected @opus override stripped from stored message, got %q", messages[0].Content)
	}
}
