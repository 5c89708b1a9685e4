// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Workspace settings.
	WorkspaceRoot string // root directory holding IDENTITY.md, SOUL.md, memory/, cron-jobs.json, etc.

	// LLM provider settings.
	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicBaseURL string
	MaxIterations   int // default 10; not passed to the orchestrator, whose tool-use loop cap is fixed at 10

	// Embedding provider settings.
	EmbeddingProvider   string // "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaURL           string
	OllamaModel         string

	// Scheduler settings.
	SchedulerTickInterval time.Duration // must be <= 30s

	// Session settings.
	SessionTTL      time.Duration
	SessionCapacity int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel        string
	HeartbeatPeriod time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		WorkspaceRoot:         envStr("ASSISTANT_WORKSPACE_ROOT", "./workspace"),
		AnthropicAPIKey:       envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:        envStr("ASSISTANT_MODEL", "claude-sonnet-4-5"),
		AnthropicBaseURL:      envStr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		MaxIterations:         envInt("ASSISTANT_MAX_ITERATIONS", 10),
		EmbeddingProvider:     envStr("ASSISTANT_EMBEDDING_PROVIDER", "noop"),
		OpenAIAPIKey:          envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:        envStr("ASSISTANT_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions:   envInt("ASSISTANT_EMBEDDING_DIMENSIONS", 384),
		OllamaURL:             envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:           envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		SchedulerTickInterval: envDuration("ASSISTANT_SCHEDULER_TICK", 15*time.Second),
		SessionTTL:            envDuration("ASSISTANT_SESSION_TTL", 24*time.Hour),
		SessionCapacity:       envInt("ASSISTANT_SESSION_CAPACITY", 100),
		OTELEndpoint:          envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:           envStr("OTEL_SERVICE_NAME", "assistant"),
		LogLevel:              envStr("ASSISTANT_LOG_LEVEL", "info"),
		HeartbeatPeriod:       envDuration("ASSISTANT_HEARTBEAT_PERIOD", 0),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("config: ASSISTANT_WORKSPACE_ROOT is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: ASSISTANT_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("config: ASSISTANT_MAX_ITERATIONS must be positive")
	}
	if c.SchedulerTickInterval <= 0 || c.SchedulerTickInterval > 30*time.Second {
		return fmt.Errorf("config: ASSISTANT_SCHEDULER_TICK must be in (0, 30s]")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
