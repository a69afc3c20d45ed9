package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/blufio/blufio/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "shell", "status", "config", "vault", "skill", "version"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil {
			t.Fatalf("find %s command: %v", name, err)
		}
		if found == nil || found.Name() != name {
			t.Fatalf("%s command not registered", name)
		}
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected version output")
	}
}

func TestStatusReportsNotRunningWhenGatewayDisabled(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Enabled: false}}
	resp := fetchStatus(cfg)
	if resp.Running {
		t.Fatal("expected running=false when gateway is disabled")
	}
	if resp.Status != "gateway disabled" {
		t.Fatalf("got status %q", resp.Status)
	}
}

func TestStatusReportsNotRunningWhenUnreachable(t *testing.T) {
	cfg := &config.Config{Gateway: config.GatewayConfig{Enabled: true, ListenAddr: "127.0.0.1:1"}}
	resp := fetchStatus(cfg)
	if resp.Running {
		t.Fatal("expected running=false for an unreachable endpoint")
	}
}

func TestFormatUptimeBuckets(t *testing.T) {
	cases := map[int64]string{
		120:   "2m",
		3720:  "1h 2m",
		90060: "1d 1h 1m",
	}
	for secs, want := range cases {
		if got := formatUptime(secs); got != want {
			t.Fatalf("formatUptime(%d) = %q, want %q", secs, got, want)
		}
	}
}

func TestConfigShowWritesTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BLUFIO_HOME", dir)
	t.Setenv("VAULT_KEY", "unused")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Storage.Path = filepath.Join(dir, "blufio.db")

	out := &bytes.Buffer{}
	if err := config.Write(cfg, out); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected non-empty TOML output")
	}
}

func TestVaultInitPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BLUFIO_HOME", dir)
	t.Setenv("VAULT_KEY", "correct horse battery staple")

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"vault", "init"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("vault init: %v", err)
	}

	cmd = NewRootCmd()
	out = &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"vault", "put", "ANTHROPIC_API_KEY", "sk-test-123"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("vault put: %v", err)
	}

	cmd = NewRootCmd()
	out = &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"vault", "get", "ANTHROPIC_API_KEY"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("vault get: %v", err)
	}
	if got := out.String(); got != "sk-test-123\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSkillInitThenListRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BLUFIO_HOME", dir)

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"skill", "init", "weather"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("skill init: %v", err)
	}

	cmd = NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"skill", "list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("skill list: %v", err)
	}
	if got := out.String(); got == "" || got == "no skills installed\n" {
		t.Fatalf("expected weather manifest to be listed, got %q", got)
	}
}

func TestConfigValidateRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BLUFIO_HOME", dir)
	if err := writeConfigFile(dir, "[agent]\nnonexistent_key = \"oops\"\n"); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "validate"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func writeConfigFile(dir, contents string) error {
	return os.WriteFile(filepath.Join(dir, "config.toml"), []byte(contents), 0o644)
}

func TestVersionDefaultsToDev(t *testing.T) {
	if Version != "dev" {
		t.Fatalf("expected default version %q, got %q", "dev", Version)
	}
}
