// Package config loads service configuration with multi-source priority:
// environment variables override an optional config file, which overrides
// built-in defaults. Environment variables use the SUPPORTFLOW_ prefix with
// underscores for nesting (SUPPORTFLOW_MODEL_PROVIDER, SUPPORTFLOW_SERVER_ADDR).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelConfig selects and tunes the language model provider.
type ModelConfig struct {
	Provider         string  `mapstructure:"provider"` // anthropic, openai, mock
	Name             string  `mapstructure:"name"`
	APIKey           string  `mapstructure:"api_key"`
	Temperature      float64 `mapstructure:"temperature"`
	CallsPerMinute   int     `mapstructure:"calls_per_minute"`
	FailureThreshold int     `mapstructure:"failure_threshold"`
	MaxRetries       int     `mapstructure:"max_retries"`
}

// KnowledgeConfig configures the retrieval backend chain. An empty DSN or
// URL leaves that backend out of the chain.
type KnowledgeConfig struct {
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	RemoteURL    string `mapstructure:"remote_url"`
	RemoteAPIKey string `mapstructure:"remote_api_key"`
	CacheSize    int    `mapstructure:"cache_size"`
	EmbedAPIKey  string `mapstructure:"embed_api_key"`
}

// AgentConfig tunes the reasoning loop.
type AgentConfig struct {
	Name            string        `mapstructure:"name"`
	Instructions    string        `mapstructure:"instructions"`
	MaxSteps        int           `mapstructure:"max_steps"`
	HistoryTurns    int           `mapstructure:"history_turns"`
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
}

// MemoryConfig bounds per-session history.
type MemoryConfig struct {
	MaxTurns     int `mapstructure:"max_turns"`
	CompactAfter int `mapstructure:"compact_after"`
}

// ApprovalConfig selects the timeout policy for unresolved approvals.
type ApprovalConfig struct {
	TimeoutPolicy string `mapstructure:"timeout_policy"` // deny, approve
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	StoreDSN  string          `mapstructure:"store_dsn"`
	Log       LogConfig       `mapstructure:"log"`
}

const defaultInstructions = `You are a helpful customer support agent for an online electronics store.
Use the available tools to look up orders, check inventory, search the knowledge base, process refunds and create tickets.
Always search the knowledge base before answering policy questions. Be concise and honest; if a tool fails or an action is not approved, explain that to the customer and offer an alternative such as a support ticket.`

// Load reads configuration from defaults, an optional file and the
// environment. An empty path skips the file lookup entirely; a named file
// that does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SUPPORTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("model.provider", "mock")
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.calls_per_minute", 60)
	v.SetDefault("model.failure_threshold", 5)
	v.SetDefault("model.max_retries", 2)

	v.SetDefault("knowledge.cache_size", 256)

	v.SetDefault("agent.name", "support")
	v.SetDefault("agent.instructions", defaultInstructions)
	v.SetDefault("agent.max_steps", 8)
	v.SetDefault("agent.history_turns", 10)
	v.SetDefault("agent.approval_timeout", 30*time.Second)

	v.SetDefault("memory.max_turns", 40)
	v.SetDefault("memory.compact_after", 30)

	v.SetDefault("approval.timeout_policy", "deny")

	v.SetDefault("store_dsn", ":memory:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	switch c.Approval.TimeoutPolicy {
	case "deny", "approve":
	default:
		return fmt.Errorf("unknown approval timeout policy %q", c.Approval.TimeoutPolicy)
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive")
	}
	if c.Memory.CompactAfter > 0 && c.Memory.MaxTurns > 0 && c.Memory.CompactAfter >= c.Memory.MaxTurns {
		return fmt.Errorf("memory.compact_after must be below memory.max_turns")
	}
	return nil
}
