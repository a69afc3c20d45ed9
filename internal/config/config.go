// Package config loads Blufio runtime configuration from a TOML file and
// environment variables, exposing typed structs and accessors for every
// section named in the configuration surface.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Security modes mirror the sandbox posture knob carried over from the
// teacher repo's command execution guard.
const (
	SecurityModeStandard         = "standard"
	SecurityModeDangerFullAccess = "danger-full-access"
	SecurityModeStrict           = "strict"
)

// Config is the fully merged runtime configuration: hardcoded defaults,
// overlaid by config.toml, overlaid by BLUFIO_* environment variables.
type Config struct {
	DataDir string `mapstructure:"-"`

	Agent      AgentConfig               `mapstructure:"agent"`
	Telegram   ChannelConfig             `mapstructure:"telegram"`
	Gateway    GatewayConfig             `mapstructure:"gateway"`
	Anthropic  ProviderConfig            `mapstructure:"anthropic"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Security   SecurityConfig            `mapstructure:"security"`
	Cost       CostConfig                `mapstructure:"cost"`
	Vault      VaultConfig               `mapstructure:"vault"`
	Context    ContextConfig             `mapstructure:"context"`
	Memory     MemoryConfig              `mapstructure:"memory"`
	Delegation DelegationConfig          `mapstructure:"delegation"`
	Agents     map[string]AgentProfile   `mapstructure:"agents"`
}

// AgentConfig names the active default agent profile and its system prompt source.
type AgentConfig struct {
	Name             string `mapstructure:"name"`
	SystemPromptFile string `mapstructure:"system_prompt_file"`
	SystemPrompt     string `mapstructure:"system_prompt"`
	MaxToolRounds    int    `mapstructure:"max_tool_rounds"`
}

// AgentProfile is one named entry in the agents[] delegation table.
type AgentProfile struct {
	SystemPrompt string `mapstructure:"system_prompt"`
	LLMProfile   string `mapstructure:"llm_profile"`
}

// DelegationConfig controls which agent profile a channel defaults to.
type DelegationConfig struct {
	DefaultProfile string `mapstructure:"default_profile"`
}

// ChannelConfig configures the Telegram channel.
type ChannelConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Token        string  `mapstructure:"token"`
	AllowedUsers []int64 `mapstructure:"allowed_users"`
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ListenAddr  string `mapstructure:"listen_addr"`
	BearerToken string `mapstructure:"bearer_token"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// ProviderConfig configures the Anthropic LLM provider.
type ProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	HaikuModel     string        `mapstructure:"haiku_model"`
	OpusModel      string        `mapstructure:"opus_model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	ContextWindow  int           `mapstructure:"context_window"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig configures the SQLite-backed storage layer.
type StorageConfig struct {
	Path            string        `mapstructure:"path"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	QueueLeaseTime  time.Duration `mapstructure:"queue_lease_time"`
	QueueMaxAttempt int           `mapstructure:"queue_max_attempts"`
}

// SecurityConfig controls command execution, SSRF, and TLS guards.
type SecurityConfig struct {
	Mode           string        `mapstructure:"mode"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	MaxToolOutput  int           `mapstructure:"max_tool_output_bytes"`
}

// CostConfig defines pricing-table fallback and budget thresholds.
type CostConfig struct {
	DailyLimitUSD    float64 `mapstructure:"daily_limit_usd"`
	MonthlyLimitUSD  float64 `mapstructure:"monthly_limit_usd"`
	WarnThresholdPct float64 `mapstructure:"warn_threshold_pct"`
}

// VaultConfig locates the credential vault file.
type VaultConfig struct {
	Path string `mapstructure:"path"`
}

// ContextConfig controls the three-zone context engine and compaction.
type ContextConfig struct {
	CompactionThresholdTokens int `mapstructure:"compaction_threshold_tokens"`
	RecentMessageTail         int `mapstructure:"recent_message_tail"`
	ToolOutputLength          int `mapstructure:"tool_output_length"`
	MaxSkillsInPrompt         int `mapstructure:"max_skills_in_prompt"`
}

// MemoryConfig controls the hybrid memory retriever and extraction cadence.
type MemoryConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	TopK                  int     `mapstructure:"top_k"`
	DuplicateSimThreshold float64 `mapstructure:"duplicate_similarity_threshold"`
	ExtractionEveryNTurns int     `mapstructure:"extraction_every_n_turns"`
}

const defaultAgentName = "default"

var defaultConfig = Config{
	Agent: AgentConfig{Name: defaultAgentName, MaxToolRounds: 8},
	Telegram: ChannelConfig{
		Enabled:      true,
		AllowedUsers: []int64{},
	},
	Gateway: GatewayConfig{
		Enabled:     false,
		ListenAddr:  "127.0.0.1:8787",
		MetricsPath: "/metrics",
	},
	Anthropic: ProviderConfig{
		Model:          "claude-sonnet-4-6",
		HaikuModel:     "claude-haiku-4-6",
		OpusModel:      "claude-opus-4-6",
		MaxTokens:      8192,
		ContextWindow:  200000,
		RequestTimeout: 60 * time.Second,
	},
	Storage: StorageConfig{
		Path:            "blufio.db",
		BusyTimeout:     5 * time.Second,
		QueueLeaseTime:  2 * time.Minute,
		QueueMaxAttempt: 5,
	},
	Security: SecurityConfig{
		Mode:           SecurityModeStandard,
		CommandTimeout: 5 * time.Minute,
		HTTPTimeout:    30 * time.Second,
		MaxToolOutput:  50 * 1024,
	},
	Cost: CostConfig{
		DailyLimitUSD:    20.0,
		MonthlyLimitUSD:  200.0,
		WarnThresholdPct: 0.8,
	},
	Vault: VaultConfig{Path: "vault.enc"},
	Context: ContextConfig{
		CompactionThresholdTokens: 150000,
		RecentMessageTail:         20,
		ToolOutputLength:          2500,
		MaxSkillsInPrompt:         20,
	},
	Memory: MemoryConfig{
		Enabled:               true,
		TopK:                  8,
		DuplicateSimThreshold: 0.92,
		ExtractionEveryNTurns: 5,
	},
}

// HomeDir returns the Blufio home/data directory, honoring BLUFIO_HOME.
func HomeDir() (string, error) {
	if dir := os.Getenv("BLUFIO_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".blufio"), nil
}

// envPrefixMap lists every BLUFIO_<SECTION>_* prefix this build understands.
// Load does not consult it: viper derives each key's env name from the
// dotted key (BLUFIO_ plus the key with "." replaced by "_").
var envPrefixMap = []string{
	"agent", "telegram", "gateway", "anthropic", "storage",
	"security", "cost", "vault", "context", "memory", "delegation",
}

// Load merges hardcoded defaults, config.toml, and BLUFIO_<SECTION>_<KEY>
// env vars, in that order of increasing precedence. An env var overrides
// only a key that has a default or appears in config.toml.
func Load() (*Config, error) {
	dataDir, err := HomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Join(dataDir, "config.toml"))
	v.SetConfigType("toml")
	v.SetEnvPrefix("blufio")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
		c.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("decode config (unknown key rejected): %w", err)
	}

	cfg.DataDir = dataDir
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = defaultAgentName
	}
	if !filepath.IsAbs(cfg.Storage.Path) {
		cfg.Storage.Path = filepath.Join(dataDir, cfg.Storage.Path)
	}
	if !filepath.IsAbs(cfg.Vault.Path) {
		cfg.Vault.Path = filepath.Join(dataDir, cfg.Vault.Path)
	}
	if err := validateSecurityMode(cfg.Security.Mode); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Write serializes a configuration as TOML. Agent name, system_prompt_file
// and max_tool_rounds; telegram enabled, token and allowed_users; anthropic
// model, max_tokens and request_timeout; storage path; security mode and
// command_timeout; and the daily/monthly cost limits are taken from cfg.
// Every other key is written with its built-in default, not cfg's value.
func Write(cfg *Config, w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}
	v := viper.New()
	setDefaults(v)

	v.Set("agent.name", cfg.Agent.Name)
	v.Set("agent.system_prompt_file", cfg.Agent.SystemPromptFile)
	v.Set("agent.max_tool_rounds", cfg.Agent.MaxToolRounds)
	v.Set("telegram.enabled", cfg.Telegram.Enabled)
	v.Set("telegram.token", cfg.Telegram.Token)
	v.Set("telegram.allowed_users", cfg.Telegram.AllowedUsers)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.request_timeout", cfg.Anthropic.RequestTimeout.String())
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("security.mode", cfg.Security.Mode)
	v.Set("security.command_timeout", cfg.Security.CommandTimeout.String())
	v.Set("cost.daily_limit_usd", cfg.Cost.DailyLimitUSD)
	v.Set("cost.monthly_limit_usd", cfg.Cost.MonthlyLimitUSD)

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders a minimal bootstrap config for first-time setup.
func DefaultUserConfigTOML() (string, error) {
	var out bytes.Buffer
	out.WriteString("[agent]\n")
	out.WriteString(fmt.Sprintf("name = %q\n\n", defaultAgentName))
	out.WriteString("[telegram]\n")
	out.WriteString("enabled = true\n")
	out.WriteString("token = \"$TELEGRAM_BOT_TOKEN\"\n\n")
	out.WriteString("[anthropic]\n")
	out.WriteString("api_key = \"$ANTHROPIC_API_KEY\"\n")
	out.WriteString(fmt.Sprintf("model = %q\n\n", defaultConfig.Anthropic.Model))
	out.WriteString("[cost]\n")
	out.WriteString(fmt.Sprintf("daily_limit_usd = %.2f\n", defaultConfig.Cost.DailyLimitUSD))
	out.WriteString(fmt.Sprintf("monthly_limit_usd = %.2f\n", defaultConfig.Cost.MonthlyLimitUSD))
	return out.String(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.name", defaultConfig.Agent.Name)
	v.SetDefault("agent.max_tool_rounds", defaultConfig.Agent.MaxToolRounds)
	v.SetDefault("telegram.enabled", defaultConfig.Telegram.Enabled)
	v.SetDefault("telegram.allowed_users", defaultConfig.Telegram.AllowedUsers)
	v.SetDefault("gateway.enabled", defaultConfig.Gateway.Enabled)
	v.SetDefault("gateway.listen_addr", defaultConfig.Gateway.ListenAddr)
	v.SetDefault("gateway.metrics_path", defaultConfig.Gateway.MetricsPath)
	v.SetDefault("anthropic.model", defaultConfig.Anthropic.Model)
	v.SetDefault("anthropic.haiku_model", defaultConfig.Anthropic.HaikuModel)
	v.SetDefault("anthropic.opus_model", defaultConfig.Anthropic.OpusModel)
	v.SetDefault("anthropic.max_tokens", defaultConfig.Anthropic.MaxTokens)
	v.SetDefault("anthropic.context_window", defaultConfig.Anthropic.ContextWindow)
	v.SetDefault("anthropic.request_timeout", defaultConfig.Anthropic.RequestTimeout)
	v.SetDefault("storage.path", defaultConfig.Storage.Path)
	v.SetDefault("storage.busy_timeout", defaultConfig.Storage.BusyTimeout)
	v.SetDefault("storage.queue_lease_time", defaultConfig.Storage.QueueLeaseTime)
	v.SetDefault("storage.queue_max_attempts", defaultConfig.Storage.QueueMaxAttempt)
	v.SetDefault("security.mode", defaultConfig.Security.Mode)
	v.SetDefault("security.command_timeout", defaultConfig.Security.CommandTimeout)
	v.SetDefault("security.http_timeout", defaultConfig.Security.HTTPTimeout)
	v.SetDefault("security.max_tool_output_bytes", defaultConfig.Security.MaxToolOutput)
	v.SetDefault("cost.daily_limit_usd", defaultConfig.Cost.DailyLimitUSD)
	v.SetDefault("cost.monthly_limit_usd", defaultConfig.Cost.MonthlyLimitUSD)
	v.SetDefault("cost.warn_threshold_pct", defaultConfig.Cost.WarnThresholdPct)
	v.SetDefault("vault.path", defaultConfig.Vault.Path)
	v.SetDefault("context.compaction_threshold_tokens", defaultConfig.Context.CompactionThresholdTokens)
	v.SetDefault("context.recent_message_tail", defaultConfig.Context.RecentMessageTail)
	v.SetDefault("context.tool_output_length", defaultConfig.Context.ToolOutputLength)
	v.SetDefault("context.max_skills_in_prompt", defaultConfig.Context.MaxSkillsInPrompt)
	v.SetDefault("memory.enabled", defaultConfig.Memory.Enabled)
	v.SetDefault("memory.top_k", defaultConfig.Memory.TopK)
	v.SetDefault("memory.duplicate_similarity_threshold", defaultConfig.Memory.DuplicateSimThreshold)
	v.SetDefault("memory.extraction_every_n_turns", defaultConfig.Memory.ExtractionEveryNTurns)
}

// ToolTmpDir returns the scratch directory for oversized tool output.
func (c *Config) ToolTmpDir() string {
	return filepath.Join(c.DataDir, "tmp")
}

func validateSecurityMode(mode string) error {
	switch mode {
	case SecurityModeStandard, SecurityModeDangerFullAccess, SecurityModeStrict:
		return nil
	default:
		return fmt.Errorf("invalid security.mode %q (allowed: %q, %q, %q)", mode, SecurityModeStandard, SecurityModeDangerFullAccess, SecurityModeStrict)
	}
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		if !strings.HasPrefix(value, "$") {
			return value, nil
		}
		return os.ExpandEnv(value), nil
	}
}
