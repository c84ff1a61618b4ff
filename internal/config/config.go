// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.sprout/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: embedding/chat models, temperature, provider credentials
//   - Storage: PostgreSQL connection (see storage.go)
//   - Assistant: retrieval and gating thresholds, rate limits
//   - Ingest: seed document root and embedding-call pacing
//
// Security: sensitive values (database password, API key) are masked in MarshalJSON
// and String. Validation is fail-fast with sentinel errors (see validation.go).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
)

// Defaults for the retrieval and gating policy. These mirror the values the
// assistant was tuned with; overriding them in config is supported but rare.
const (
	// DefaultTopK is the number of chunks retrieved per query.
	DefaultTopK = 8

	// DefaultMinQueryLength is the minimum trimmed query length the assistant
	// will answer; shorter inputs get the capability-hint fallback.
	DefaultMinQueryLength = 8

	// DefaultScoreFloor is the minimum top-chunk similarity required before the
	// assistant is allowed to synthesize an answer.
	DefaultScoreFloor = 0.2
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider configuration
	Provider      string  `mapstructure:"provider" json:"provider"`
	EmbedModel    string  `mapstructure:"embed_model" json:"embed_model"`
	EmbedDims     int     `mapstructure:"embed_dimensions" json:"embed_dimensions"`
	ChatModel     string  `mapstructure:"chat_model" json:"chat_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	OpenAIAPIKey  string  `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenAIBaseURL string  `mapstructure:"openai_base_url" json:"openai_base_url"`

	// Assistant configuration
	TopK                    int     `mapstructure:"top_k" json:"top_k"`
	MinQueryLength          int     `mapstructure:"min_query_length" json:"min_query_length"`
	ScoreFloor              float64 `mapstructure:"score_floor" json:"score_floor"`
	Language                string  `mapstructure:"language" json:"language"`
	RAGDebug                bool    `mapstructure:"rag_debug" json:"rag_debug"`
	AssistRateLimit         int     `mapstructure:"assist_rate_limit" json:"assist_rate_limit"`
	AssistRateWindowMinutes int     `mapstructure:"assist_rate_window_minutes" json:"assist_rate_window_minutes"`

	// Ingest configuration
	SeedRoot        string  `mapstructure:"seed_root" json:"seed_root"`
	EmbedRatePerSec float64 `mapstructure:"embed_rate_per_sec" json:"embed_rate_per_sec"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sprout")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes priority over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults match the models the seed corpus was embedded with.
	viper.SetDefault("provider", ProviderOpenAI)
	viper.SetDefault("embed_model", "text-embedding-3-small")
	viper.SetDefault("embed_dimensions", 1536)
	viper.SetDefault("chat_model", "gpt-4o-mini")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("openai_base_url", "")

	// Assistant defaults
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("min_query_length", DefaultMinQueryLength)
	viper.SetDefault("score_floor", DefaultScoreFloor)
	viper.SetDefault("language", "en")
	viper.SetDefault("rag_debug", false)
	viper.SetDefault("assist_rate_limit", 30)
	viper.SetDefault("assist_rate_window_minutes", 60)

	// Ingest defaults
	viper.SetDefault("seed_root", "data/rag")
	viper.SetDefault("embed_rate_per_sec", 5.0)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "sprout")
	viper.SetDefault("postgres_password", "sprout_dev_password")
	viper.SetDefault("postgres_db_name", "sprout")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8080")
	viper.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded strings can't fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("openai_base_url", "OPENAI_BASE_URL")

	mustBind("provider", "SPROUT_PROVIDER")
	mustBind("embed_model", "EMBED_MODEL")
	mustBind("embed_dimensions", "EMBED_DIMENSIONS")
	mustBind("chat_model", "LLM_MODEL")
	mustBind("language", "SPROUT_LANGUAGE")
	mustBind("rag_debug", "RAG_DEBUG")
	mustBind("top_k", "RAG_TOP_K")
	mustBind("seed_root", "SPROUT_SEED_ROOT")
	mustBind("listen_addr", "SPROUT_LISTEN_ADDR")
	mustBind("trust_proxy", "SPROUT_TRUST_PROXY")

	// NOTE: DATABASE_URL is handled separately in parseDatabaseURL because it
	// expands into several postgres_* fields.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Short secrets are fully masked to prevent substring matching; longer secrets
// keep the first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// AssistRateWindow returns the assistant rate-limit window as a duration.
func (c *Config) AssistRateWindow() time.Duration {
	return time.Duration(c.AssistRateWindowMinutes) * time.Minute
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
