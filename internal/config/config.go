// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.quill/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: model selection, embedder model, temperature, max tokens
//   - Retrieval: similarity floor, relevancy threshold, rerank top-K, iteration cap
//   - Cache: per-namespace TTLs
//   - Conversation: history window, compression threshold, per-message cap
//   - Storage: PostgreSQL connection
//
// Validation is fail-fast: Load returns an error before any component starts,
// so a misconfigured process never serves queries. Sensitive fields are masked
// in MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing. The key is
	// checked at model-client setup, not in Validate, so data-management
	// commands work without one.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidThreshold indicates a score threshold is out of [0,1].
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidTopK indicates a top-K value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidIterations indicates the retrieval iteration cap is out of range.
	ErrInvalidIterations = errors.New("invalid max iterations")

	// ErrInvalidTTL indicates a cache TTL is not positive.
	ErrInvalidTTL = errors.New("invalid cache TTL")

	// ErrInvalidHistory indicates the conversation window settings are inconsistent.
	ErrInvalidHistory = errors.New("invalid history configuration")

	// ErrInvalidFallbackMode indicates an unknown generator fallback mode.
	ErrInvalidFallbackMode = errors.New("invalid fallback mode")

	// ErrInvalidPostgres indicates the PostgreSQL connection settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// Generator fallback modes for the empty-context branch.
const (
	// FallbackNotFound returns the canned "could not find relevant information"
	// message when retrieval is exhausted.
	FallbackNotFound = "notfound"

	// FallbackGeneral returns a best-effort general-knowledge answer tagged as
	// outside the grounded corpus.
	FallbackGeneral = "general"
)

// DefaultEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 supports truncation to 768 dimensions via
// OutputDimensionality; the memories schema uses 768 (see memory.VectorDimension).
const DefaultEmbedderModel = "gemini-embedding-001"

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	SimilarityFloor    float64 `mapstructure:"similarity_floor" json:"similarity_floor"`
	RelevancyThreshold float64 `mapstructure:"relevancy_threshold" json:"relevancy_threshold"`
	RetrievalTopK      int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RerankTopK         int     `mapstructure:"rerank_top_k" json:"rerank_top_k"`
	MaxIterations      int     `mapstructure:"max_iterations" json:"max_iterations"`
	ScopeGate          bool    `mapstructure:"scope_gate" json:"scope_gate"`

	// ScopeKeywords is the corpus vocabulary for the scope gate. Empty
	// means the gate admits everything even when enabled.
	ScopeKeywords []string `mapstructure:"scope_keywords" json:"scope_keywords"`

	// Generator configuration
	FallbackMode string `mapstructure:"fallback_mode" json:"fallback_mode"`

	// Cache TTLs, one per namespace plus the session sliding expiry.
	ResponseTTL  time.Duration `mapstructure:"response_ttl" json:"response_ttl"`
	RelevancyTTL time.Duration `mapstructure:"relevancy_ttl" json:"relevancy_ttl"`
	RerankTTL    time.Duration `mapstructure:"rerank_ttl" json:"rerank_ttl"`
	TransformTTL time.Duration `mapstructure:"transform_ttl" json:"transform_ttl"`
	EmbeddingTTL time.Duration `mapstructure:"embedding_ttl" json:"embedding_ttl"`
	SessionTTL   time.Duration `mapstructure:"session_ttl" json:"session_ttl"`

	// Conversation window configuration
	MaxHistory        int `mapstructure:"max_history" json:"max_history"`
	CompressThreshold int `mapstructure:"compress_threshold" json:"compress_threshold"`
	MaxMessageTokens  int `mapstructure:"max_message_tokens" json:"max_message_tokens"`
	RecentMessages    int `mapstructure:"recent_messages" json:"recent_messages"`

	// Semantic memory configuration
	MemoryTopK         int     `mapstructure:"memory_top_k" json:"memory_top_k"`
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold" json:"duplicate_threshold"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".quill")
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
		// Configuration file not found is not an error; defaults apply.
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
// Threshold and TTL defaults mirror the production deployment this pipeline
// was tuned on; preserve them unless product requirements change.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("max_tokens", 2048)

	// Retrieval defaults
	viper.SetDefault("similarity_floor", 0.3)
	viper.SetDefault("relevancy_threshold", 0.6)
	viper.SetDefault("retrieval_top_k", 10)
	viper.SetDefault("rerank_top_k", 5)
	viper.SetDefault("max_iterations", 2)
	viper.SetDefault("scope_gate", false)
	viper.SetDefault("scope_keywords", []string{})

	// Generator defaults
	viper.SetDefault("fallback_mode", FallbackNotFound)

	// Cache TTL defaults
	viper.SetDefault("response_ttl", time.Hour)
	viper.SetDefault("relevancy_ttl", 24*time.Hour)
	viper.SetDefault("rerank_ttl", 24*time.Hour)
	viper.SetDefault("transform_ttl", 7*24*time.Hour)
	viper.SetDefault("embedding_ttl", 7*24*time.Hour)
	viper.SetDefault("session_ttl", 30*24*time.Hour)

	// Conversation defaults
	viper.SetDefault("max_history", 15)
	viper.SetDefault("compress_threshold", 20)
	viper.SetDefault("max_message_tokens", 200)
	viper.SetDefault("recent_messages", 5)

	// Memory defaults
	viper.SetDefault("memory_top_k", 3)
	viper.SetDefault("duplicate_threshold", 0.95)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "quill")
	viper.SetDefault("postgres_password", "quill_dev_password")
	viper.SetDefault("postgres_db_name", "quill")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; model-client
// setup checks its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "QUILL_MODEL_NAME")
	mustBind("embedder_model", "QUILL_EMBEDDER_MODEL")
	mustBind("fallback_mode", "QUILL_FALLBACK_MODE")
	mustBind("postgres_host", "QUILL_POSTGRES_HOST")
	mustBind("postgres_port", "QUILL_POSTGRES_PORT")
	mustBind("postgres_user", "QUILL_POSTGRES_USER")
	mustBind("postgres_password", "QUILL_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "QUILL_POSTGRES_DB")
	mustBind("postgres_ssl_mode", "QUILL_POSTGRES_SSL_MODE")
}

// ConnString returns the pgx connection URL for the configured database.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Short secrets are fully masked; longer ones keep the first and last two
// characters for debug utility.
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
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit.
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}
