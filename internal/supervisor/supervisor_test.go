package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blufio/blufio/internal/config"
	"github.com/blufio/blufio/internal/vault"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir: dir,
		Agent:   config.AgentConfig{Name: "default"},
		Anthropic: config.ProviderConfig{
			APIKey:     "test-key",
			Model:      "claude-sonnet-4-6",
			HaikuModel: "claude-haiku-4-6",
			OpusModel:  "claude-opus-4-6",
			MaxTokens:  1024,
		},
		Storage: config.StorageConfig{
			Path:        filepath.Join(dir, "blufio.db"),
			BusyTimeout: 5 * time.Second,
		},
		Security: config.SecurityConfig{
			Mode:           config.SecurityModeStandard,
			CommandTimeout: 30 * time.Second,
			HTTPTimeout:    10 * time.Second,
			MaxToolOutput:  2500,
		},
		Cost: config.CostConfig{
			DailyLimitUSD:    20,
			MonthlyLimitUSD:  200,
			WarnThresholdPct: 0.8,
		},
		Vault:   config.VaultConfig{Path: filepath.Join(dir, "vault.enc")},
		Context: config.ContextConfig{CompactionThresholdTokens: 150000, RecentMessageTail: 20},
		Memory:  config.MemoryConfig{Enabled: true, TopK: 8, DuplicateSimThreshold: 0.92},
		Gateway: config.GatewayConfig{Enabled: false},
	}
}

func TestNewWiresSupervisorWithoutOptionalChannels(t *testing.T) {
	cfg := testConfig(t)
	v, err := vault.Load(cfg.Vault.Path, "unused")
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}

	sup, err := New(context.Background(), cfg, v)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sup.store.Close()

	if sup.Hub() == nil {
		t.Fatal("expected hub to be built")
	}
	if sup.httpServer != nil {
		t.Fatal("expected no http server when gateway is disabled")
	}
	if sup.telegram != nil {
		t.Fatal("expected no telegram listener when disabled")
	}
}

func TestNewWiresGatewayWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway = config.GatewayConfig{Enabled: true, ListenAddr: "127.0.0.1:0", BearerToken: "secret"}

	v, err := vault.Load(cfg.Vault.Path, "unused")
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}

	sup, err := New(context.Background(), cfg, v)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sup.store.Close()

	if sup.httpServer == nil {
		t.Fatal("expected http server when gateway is enabled")
	}
}
