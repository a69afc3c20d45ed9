// Package supervisor wires every subsystem together at startup: config,
// vault, storage, the provider, the session hub, every channel listener,
// and the HTTP gateway, then drives a graceful shutdown on signal.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	blufiocontext "github.com/blufio/blufio/internal/context"

	"github.com/blufio/blufio/internal/approval"
	"github.com/blufio/blufio/internal/channels"
	"github.com/blufio/blufio/internal/config"
	"github.com/blufio/blufio/internal/costs"
	"github.com/blufio/blufio/internal/gateway"
	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/memory"
	"github.com/blufio/blufio/internal/metrics"
	"github.com/blufio/blufio/internal/provider"
	"github.com/blufio/blufio/internal/scheduler"
	"github.com/blufio/blufio/internal/security"
	"github.com/blufio/blufio/internal/session"
	"github.com/blufio/blufio/internal/storage"
	"github.com/blufio/blufio/internal/tools"
	"github.com/blufio/blufio/internal/vault"
)

// Version is reported on /v1/health; main overrides it at build time via
// the same ldflags that set cli.Version.
var Version = "dev"

// Supervisor owns every long-lived component and coordinates startup and
// shutdown.
type Supervisor struct {
	cfg         *config.Config
	store       *storage.Store
	hub         *session.Hub
	multiWriter *channels.MultiWriter

	httpServer *http.Server
	scheduler  *scheduler.Service

	telegram *channels.TelegramListener
}

// New builds every subsystem from cfg but does not start anything yet.
func New(ctx context.Context, cfg *config.Config, v *vault.Vault) (*Supervisor, error) {
	for _, secret := range v.Values() {
		logging.Registry().Add(secret)
	}

	store, err := storage.Open(ctx, cfg.Storage.Path, cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if recovered, err := store.RecoverStaleProcessing(ctx); err != nil {
		logging.Logger().Warn("failed to recover stale queue entries", "err", err)
	} else if recovered > 0 {
		logging.Logger().Info("recovered stale queue entries", "count", recovered)
	}

	apiKey, _ := v.Get("ANTHROPIC_API_KEY")
	if apiKey == "" {
		apiKey = cfg.Anthropic.APIKey
	}
	prov, err := provider.NewProviderFromConfig(apiKey, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}

	models := provider.TierModels{
		Haiku:  cfg.Anthropic.HaikuModel,
		Sonnet: cfg.Anthropic.Model,
		Opus:   cfg.Anthropic.OpusModel,
	}

	registry := tools.NewRegistry()
	resolver := security.NewResolver()
	if err := registry.Register(tools.HTTPTool{Resolver: resolver, Timeout: cfg.Security.HTTPTimeout, OutputLimit: cfg.Security.MaxToolOutput, TmpDir: cfg.ToolTmpDir()}); err != nil {
		return nil, err
	}
	workspaceDir := filepath.Join(cfg.DataDir, "workspace")
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	if err := registry.Register(tools.BashTool{WorkspaceDir: workspaceDir, Timeout: cfg.Security.CommandTimeout, OutputLimit: cfg.Security.MaxToolOutput, TmpDir: cfg.ToolTmpDir()}); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.FileTool{WorkspaceDir: workspaceDir, OutputLimit: cfg.Security.MaxToolOutput, TmpDir: cfg.ToolTmpDir()}); err != nil {
		return nil, err
	}

	// Every channel Blufio ships with today (CLI, Telegram, gateway) trusts
	// its single operator, so tool calls auto-approve regardless of
	// security.mode, which is validated at load but not consulted here.
	var approver approval.Approver = approval.AutoApprover{}

	static := blufiocontext.NewStaticZone(cfg.Agent.SystemPromptFile, cfg.Agent.SystemPrompt)

	var memProvider *memory.Provider
	var memWriter *memory.Writer
	conditionalProviders := []blufiocontext.ConditionalProvider{}
	if cfg.Memory.Enabled {
		retriever := memory.NewRetriever(store, nil)
		memProvider = memory.NewProvider(retriever, cfg.Memory.TopK)
		memWriter = memory.NewWriter(store, nil, cfg.Memory.DuplicateSimThreshold)
		conditionalProviders = append(conditionalProviders, memProvider)
		if err := registry.Register(tools.MemoryTool{Writer: memWriter, Finder: store}); err != nil {
			return nil, err
		}
	}
	conditionalProviders = append(conditionalProviders, blufiocontext.NewSkillProvider(registry, cfg.Context.MaxSkillsInPrompt))
	conditional := blufiocontext.NewConditionalZone(conditionalProviders...)
	dynamic := blufiocontext.NewDynamicZone(cfg.Context.CompactionThresholdTokens, cfg.Context.RecentMessageTail, prov, models.Haiku)
	engine := blufiocontext.NewEngine(static, conditional, dynamic)

	tracker := costs.NewTracker(store)

	runner := &session.Runner{
		Store:         store,
		Provider:      prov,
		Registry:      registry,
		Approver:      approver,
		Engine:        engine,
		MemoryQuery:   memProvider,
		MemoryWriter:  memWriter,
		CostTracker:   tracker,
		Models:        models,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		CostProvider:  "anthropic",
		Budget: session.BudgetLimits{
			DailyUSD:         cfg.Cost.DailyLimitUSD,
			MonthlyUSD:       cfg.Cost.MonthlyLimitUSD,
			WarnThresholdPct: cfg.Cost.WarnThresholdPct,
		},
		ExtractEveryN:   cfg.Memory.ExtractionEveryNTurns,
		ExtractProvider: prov,
		ExtractModel:    models.Haiku,
	}

	multiWriter := channels.NewMultiWriter()
	hub := session.NewHub(runner, multiWriter, 8).WithQueueStore(store)

	sched := scheduler.NewService()
	if err := sched.Register(ctx, scheduler.Job{
		Name:     "queue-stale-recovery",
		Schedule: "@every 5m",
		Run: func(ctx context.Context) error {
			recovered, err := store.RecoverStaleProcessing(ctx)
			if err != nil {
				return err
			}
			if recovered > 0 {
				logging.Logger().Info("recovered stale queue entries", "count", recovered)
			}
			return nil
		},
	}); err != nil {
		return nil, fmt.Errorf("register queue recovery job: %w", err)
	}

	sup := &Supervisor{cfg: cfg, store: store, hub: hub, multiWriter: multiWriter, scheduler: sched}

	// The CLI writer/listener pair is wired up by Shell (below) against
	// its own stdin/stdout, not by the long-running "serve" supervisor,
	// so no "cli" prefix is registered here.

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		allowed := make([]string, 0, len(cfg.Telegram.AllowedUsers))
		for _, id := range cfg.Telegram.AllowedUsers {
			allowed = append(allowed, fmt.Sprintf("%d", id))
		}
		telegramListener := channels.NewTelegram(cfg.Telegram.Token, allowed)
		multiWriter.Register("telegram", channels.NewTelegramWriter(telegramListener))
		sup.telegram = telegramListener
	}

	if cfg.Gateway.Enabled {
		httpWriter := gateway.NewHTTPWriter()
		multiWriter.Register("http", httpWriter)
		multiWriter.Register("ws", httpWriter)
		deps := gateway.Dependencies{Hub: hub, Writer: httpWriter, Store: store}
		gwRouter := gateway.NewRouter(deps, cfg.Gateway.BearerToken, Version)
		sup.httpServer = &http.Server{Addr: cfg.Gateway.ListenAddr, Handler: gwRouter}
	}

	return sup, nil
}

// Run starts the hub, every enabled channel, and the gateway, blocking
// until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.hub.Start(ctx)
	s.redeliverPendingOnBoot(ctx)
	s.scheduler.Start()

	errCh := make(chan error, 4)

	if s.telegram != nil {
		go func() {
			if err := s.telegram.Listen(ctx, s.hub); err != nil {
				errCh <- fmt.Errorf("telegram listener: %w", err)
			}
		}()
	}

	if s.httpServer != nil {
		go func() {
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("gateway server: %w", err)
			}
		}()
	}

	go s.reportGaugesUntil(ctx)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		_ = s.shutdown()
		return err
	}
}

// reportGaugesUntil periodically refreshes the active-session and
// queue-depth gauges until ctx is canceled.
func (s *Supervisor) reportGaugesUntil(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ActiveSessions.Set(float64(s.hub.ActiveSessionCount()))
			if depth, err := s.store.QueueDepth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}

func (s *Supervisor) shutdown() error {
	s.hub.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.scheduler.Stop(shutdownCtx); err != nil {
		logging.Logger().Warn("scheduler shutdown error", "err", err)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Logger().Warn("gateway shutdown error", "err", err)
		}
	}
	return s.store.Close()
}

// Hub exposes the session hub.
func (s *Supervisor) Hub() *session.Hub { return s.hub }

// Store exposes the storage handle.
func (s *Supervisor) Store() *storage.Store { return s.store }

// Shell registers a CLI writer against in/out and runs the interactive REPL
// on the shared hub until the user quits or ctx is canceled. It is safe to
// call whether or not the gateway/Telegram channels are also running.
func (s *Supervisor) Shell(ctx context.Context, in io.Reader, out io.Writer) error {
	cliWriter := channels.NewCLIWriter(out)
	s.multiWriter.Register("cli", cliWriter)
	s.hub.Start(ctx)
	s.redeliverPendingOnBoot(ctx)
	return channels.NewCLI(in, out).Listen(ctx, s.hub, cliWriter)
}

// redeliverPendingOnBoot replays queue rows left pending by a prior crash
// (either never picked up, or reverted from a stale processing lease by
// RecoverStaleProcessing). Safe only here: it runs after hub.Start but
// before any channel listener is registered, so no live Dispatch can be
// racing these rows yet. Once the process is up, a crash mid-turn waits for
// the next restart to be replayed rather than an in-process retry, since a
// continuously running drain would race live dispatches over the same rows.
func (s *Supervisor) redeliverPendingOnBoot(ctx context.Context) {
	replayed := 0
	for {
		entry, err := s.store.Dequeue(ctx, 2*time.Minute)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			logging.Logger().Warn("queue boot replay failed", "err", err)
			break
		}
		msg := session.Message{SessionID: entry.SessionID, Text: entry.Payload, QueueID: entry.ID}
		if err := s.hub.Redeliver(ctx, msg); err != nil {
			logging.Logger().Warn("failed to redeliver queued message", "queue_id", entry.ID, "err", err)
			_ = s.store.Fail(ctx, entry.ID)
			continue
		}
		replayed++
	}
	if replayed > 0 {
		logging.Logger().Info("replayed queued messages after restart", "count", replayed)
	}
}
