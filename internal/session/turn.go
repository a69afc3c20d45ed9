package session

import (
	"context"
	"fmt"
	"time"

	blufiocontext "github.com/blufio/blufio/internal/context"

	"github.com/blufio/blufio/internal/approval"
	"github.com/blufio/blufio/internal/costs"
	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/memory"
	"github.com/blufio/blufio/internal/provider"
	"github.com/blufio/blufio/internal/router"
	"github.com/blufio/blufio/internal/storage"
	"github.com/blufio/blufio/internal/tools"
)

// BudgetLimits configures per-turn spend enforcement.
type BudgetLimits struct {
	DailyUSD         float64
	MonthlyUSD       float64
	WarnThresholdPct float64
}

// Runner executes one turn end to end: classify, budget-check, assemble
// context, run the tool loop, persist, and schedule memory extraction.
type Runner struct {
	Store           *storage.Store
	Provider        provider.Provider
	Registry        *tools.Registry
	Approver        approval.Approver
	Engine          *blufiocontext.Engine
	MemoryQuery     *memory.Provider
	MemoryWriter    *memory.Writer
	CostTracker     *costs.Tracker
	Models          provider.TierModels
	MaxTokens       int
	MaxToolRounds   int
	CostProvider    string
	Budget          BudgetLimits
	ExtractEveryN   int
	ExtractProvider provider.Provider
	ExtractModel    string
}

// TurnResult is what a channel-facing caller needs after a turn completes.
type TurnResult struct {
	Reply   string
	Blocked bool
}

// RunTurn processes one inbound message for a session end to end.
func (r *Runner) RunTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	now := time.Now()

	stripped, tier := router.SelectTier(text, r.currentBudgetStatus(ctx, now))
	model := r.Models.ModelFor(tier)

	estimated := costs.EstimateCallCostUSD(model, r.MaxTokens)
	if blocked, msg, err := r.checkBudget(ctx, now, estimated); err != nil {
		return nil, err
	} else if blocked {
		return &TurnResult{Reply: msg, Blocked: true}, nil
	}

	priorMessages, err := r.Store.GetMessagesForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	history := toChatHistory(priorMessages)
	history = append(history, provider.ChatMessage{Role: provider.RoleUser, Content: stripped})

	if r.MemoryQuery != nil {
		r.MemoryQuery.SetCurrentQuery(stripped)
		defer r.MemoryQuery.ClearCurrentQuery()
	}

	toolDefs := r.Registry.ToolDefinitions()
	assembled, err := r.Engine.Assemble(ctx, history, toolDefs, model, r.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}
	if assembled.CompactionRan {
		if err := r.recordUsage(ctx, sessionID, "compaction", model, assembled.CompactionUsage); err != nil {
			logging.Logger().Warn("failed to record compaction usage", "err", err)
		}
	}

	resp, finalHistory, err := RunToolLoop(ctx, r.Provider, r.Registry, r.Approver, assembled.Request, r.MaxToolRounds, func(usage provider.TokenUsage) error {
		return r.recordUsage(ctx, sessionID, "chat", model, usage)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("turn produced no response")
	}

	if err := r.persistDelta(ctx, sessionID, priorMessages, finalHistory); err != nil {
		return nil, err
	}

	if r.MemoryWriter != nil && r.ExtractProvider != nil && r.ExtractEveryN > 0 {
		turnNumber := 1
		for _, m := range priorMessages {
			if provider.Role(m.Role) == provider.RoleUser {
				turnNumber++
			}
		}
		if memory.ExtractionCadence(turnNumber, r.ExtractEveryN) {
			go r.extractMemories(context.WithoutCancel(ctx), sessionID, finalHistory)
		}
	}

	return &TurnResult{Reply: resp.Content}, nil
}

// checkBudget denies the turn before the provider is ever called when
// today's spend plus the estimated cost of this call would exceed either
// cap (spec: "allowed iff spent_today + estimated ≤ daily_cap").
func (r *Runner) checkBudget(ctx context.Context, now time.Time, estimated float64) (bool, string, error) {
	if r.CostTracker == nil || (r.Budget.DailyUSD <= 0 && r.Budget.MonthlyUSD <= 0) {
		return false, "", nil
	}
	spend, err := r.CostTracker.Spend(ctx, now)
	if err != nil {
		return false, "", fmt.Errorf("check spend: %w", err)
	}
	status := costs.CheckBudget(spend, estimated, r.Budget.DailyUSD, r.Budget.MonthlyUSD, r.Budget.WarnThresholdPct)
	if status == costs.BudgetDenied {
		return true, fmt.Sprintf("Budget exhausted: $%.4f today / $%.4f this month. Try again later.", spend.TodayUSD, spend.MonthUSD), nil
	}
	return false, "", nil
}

// currentBudgetStatus reports the budget status of spend already recorded,
// with no pending-call estimate, for the router's tier-downshift decision.
func (r *Runner) currentBudgetStatus(ctx context.Context, now time.Time) costs.BudgetStatus {
	if r.CostTracker == nil {
		return costs.BudgetOK
	}
	spend, err := r.CostTracker.Spend(ctx, now)
	if err != nil {
		return costs.BudgetOK
	}
	return costs.CheckBudget(spend, 0, r.Budget.DailyUSD, r.Budget.MonthlyUSD, r.Budget.WarnThresholdPct)
}

func (r *Runner) recordUsage(ctx context.Context, sessionID, feature, model string, usage provider.TokenUsage) error {
	if r.CostTracker == nil {
		return nil
	}
	costUsage := costs.Usage{
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		CacheReadTokens:  usage.CacheReadTokens,
	}
	cost := 0.0
	if usage.CostUSD != nil {
		cost = *usage.CostUSD
	} else {
		cost = costs.Calculate(model, costUsage)
	}
	return r.CostTracker.Append(ctx, costs.Record{
		SessionID: sessionID,
		Provider:  r.CostProvider,
		Model:     model,
		Feature:   feature,
		Usage:     costUsage,
		CostUSD:   cost,
	})
}

func (r *Runner) persistDelta(ctx context.Context, sessionID string, prior []*storage.Message, finalHistory []provider.ChatMessage) error {
	newMessages := finalHistory[len(prior):]
	for _, m := range newMessages {
		content := renderMessageForStorage(m)
		if content == "" {
			continue
		}
		if _, err := r.Store.InsertMessage(ctx, sessionID, string(m.Role), content); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
	}
	return nil
}

// extractMemories sends the recent turn window to the extraction model and
// writes every fact it returns through MemoryWriter.Remember, which itself
// drops anything too similar to an existing active memory.
func (r *Runner) extractMemories(ctx context.Context, sessionID string, history []provider.ChatMessage) {
	transcript := make([]string, 0, len(history))
	for _, m := range history {
		if m.Content != "" {
			transcript = append(transcript, fmt.Sprintf("%s: %s", m.Role, m.Content))
		}
	}
	rendered := memory.BuildExtractionTranscript(transcript)
	if rendered == "" {
		return
	}

	resp, err := r.ExtractProvider.Chat(ctx, provider.ChatRequest{
		System: memory.ExtractionPrompt,
		Model:  r.ExtractModel,
		Messages: []provider.ChatMessage{
			{Role: provider.RoleUser, Content: rendered},
		},
		MaxTokens: 512,
	})
	if err != nil {
		logging.Logger().Warn("memory extraction call failed", "session_id", sessionID, "err", err)
		return
	}
	if err := r.recordUsage(ctx, sessionID, "memory_extraction", r.ExtractModel, resp.Usage); err != nil {
		logging.Logger().Warn("failed to record memory extraction usage", "err", err)
	}

	facts := memory.ParseExtractionResponse(resp.Content)
	for _, fact := range facts {
		if _, err := r.MemoryWriter.Remember(ctx, sessionID, fact.Content, memory.SourceExtracted); err != nil {
			logging.Logger().Warn("failed to persist extracted memory", "session_id", sessionID, "err", err)
		}
	}
	logging.Logger().Info("memory extraction completed", "session_id", sessionID, "facts_found", len(facts))
}

func toChatHistory(messages []*storage.Message) []provider.ChatMessage {
	out := make([]provider.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, provider.ChatMessage{Role: provider.Role(m.Role), Content: m.Content})
	}
	return out
}

func renderMessageForStorage(m provider.ChatMessage) string {
	if m.Content != "" {
		return m.Content
	}
	for _, tr := range m.ToolResults {
		if tr.Content != "" {
			return tr.Content
		}
	}
	return ""
}
