// Package config provides application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (FEELORI_* overrides, secrets)
//  2. Config file (./config.yaml or ~/.feelori/config.yaml)
//  3. Default values
//
// Defaults mirror the production deployment: intent floor 0.75, breaker
// threshold 5 with a 60s cooldown, 20 requests per 60s per client, 500/50
// chunking. Validation is fail-fast with sentinel errors so callers can
// check errors.Is.
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

var (
	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidConfidenceFloor indicates the intent floor is out of [0,1].
	ErrInvalidConfidenceFloor = errors.New("invalid intent confidence floor")

	// ErrInvalidLowConfidenceTurns indicates the escalation turn count is invalid.
	ErrInvalidLowConfidenceTurns = errors.New("invalid low confidence turns")

	// ErrInvalidSimilarityFloor indicates the retrieval floor is out of [0,1].
	ErrInvalidSimilarityFloor = errors.New("invalid similarity floor")

	// ErrInvalidEmbeddingDim indicates the embedding width does not fit
	// the vector schema.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidLifecycle indicates conversation lifecycle settings are invalid.
	ErrInvalidLifecycle = errors.New("invalid conversation lifecycle settings")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunk size/overlap")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidBreaker indicates circuit breaker settings are invalid.
	ErrInvalidBreaker = errors.New("invalid circuit breaker settings")

	// ErrInvalidLimiter indicates rate limiter settings are invalid.
	ErrInvalidLimiter = errors.New("invalid rate limiter settings")

	// ErrInvalidRetry indicates retry/backoff settings are invalid.
	ErrInvalidRetry = errors.New("invalid retry settings")

	// ErrInvalidHistoryWindow indicates the history window is invalid.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidPostgres indicates the PostgreSQL settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL settings")
)

// Config stores engine configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; update it when
// adding new secret fields.
type Config struct {
	// Provider configuration
	GeminiModel      string        `mapstructure:"gemini_model" json:"gemini_model"`
	GeminiEmbedModel string        `mapstructure:"gemini_embed_model" json:"gemini_embed_model"`
	OpenAIModel      string        `mapstructure:"openai_model" json:"openai_model"`
	EmbeddingDim     int           `mapstructure:"embedding_dim" json:"embedding_dim"`
	MaxTokens        int           `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature      float32       `mapstructure:"temperature" json:"temperature"`
	ProviderTimeout  time.Duration `mapstructure:"provider_timeout" json:"provider_timeout"`

	// Intent classification
	ConfidenceFloor    float64  `mapstructure:"confidence_floor" json:"confidence_floor"`
	LowConfidenceTurns int      `mapstructure:"low_confidence_turns" json:"low_confidence_turns"`
	EscalationKeywords []string `mapstructure:"escalation_keywords" json:"escalation_keywords"`
	ResolutionPhrases  []string `mapstructure:"resolution_phrases" json:"resolution_phrases"`

	// Knowledge retrieval
	ChunkSize       int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap    int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK            int     `mapstructure:"top_k" json:"top_k"`
	SimilarityFloor float64 `mapstructure:"similarity_floor" json:"similarity_floor"`

	// Resilience
	BreakerThreshold int           `mapstructure:"breaker_threshold" json:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" json:"breaker_cooldown"`
	LimiterCapacity  int           `mapstructure:"limiter_capacity" json:"limiter_capacity"`
	LimiterRefill    float64       `mapstructure:"limiter_refill" json:"limiter_refill"` // tokens per second
	MaxRetries       int           `mapstructure:"max_retries" json:"max_retries"`
	BackoffBase      time.Duration `mapstructure:"backoff_base" json:"backoff_base"`
	BackoffCeiling   time.Duration `mapstructure:"backoff_ceiling" json:"backoff_ceiling"`

	// Conversation lifecycle
	HistoryWindow     int           `mapstructure:"history_window" json:"history_window"`
	HistoryCharBudget int           `mapstructure:"history_char_budget" json:"history_char_budget"`
	IdleThreshold     time.Duration `mapstructure:"idle_threshold" json:"idle_threshold"`
	MaxInboundChars   int           `mapstructure:"max_inbound_chars" json:"max_inbound_chars"`
	MaxOutboundChars  int           `mapstructure:"max_outbound_chars" json:"max_outbound_chars"`
	ResponseCacheTTL  time.Duration `mapstructure:"response_cache_ttl" json:"response_cache_ttl"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".feelori"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in defaults without touching files or env.
// Primarily for tests and the offline chat mode.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of hardcoded defaults cannot fail; guard anyway.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("BUG: default config unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("gemini_embed_model", "gemini-embedding-001")
	v.SetDefault("openai_model", "gpt-4o-mini")
	// Must match the VECTOR(n) width in the chunks migration.
	v.SetDefault("embedding_dim", 1536)
	v.SetDefault("max_tokens", 512)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("provider_timeout", "20s")

	// Intent defaults
	v.SetDefault("confidence_floor", 0.75)
	v.SetDefault("low_confidence_turns", 3)
	v.SetDefault("escalation_keywords", []string{
		"human", "agent", "representative", "speak to a person", "real person",
	})
	v.SetDefault("resolution_phrases", []string{
		"glad i could help", "anything else i can help", "have a great day",
	})

	// Knowledge defaults
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("top_k", 3)
	v.SetDefault("similarity_floor", 0.75)

	// Resilience defaults: 20 requests per 60 seconds per client.
	v.SetDefault("breaker_threshold", 5)
	v.SetDefault("breaker_cooldown", "60s")
	v.SetDefault("limiter_capacity", 20)
	v.SetDefault("limiter_refill", 20.0/60.0)
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base", "500ms")
	v.SetDefault("backoff_ceiling", "10s")

	// Conversation defaults
	v.SetDefault("history_window", 10)
	v.SetDefault("history_char_budget", 4000)
	v.SetDefault("idle_threshold", "10m")
	v.SetDefault("max_inbound_chars", 4096)
	v.SetDefault("max_outbound_chars", 4096)
	v.SetDefault("response_cache_ttl", "5m")

	// Observability defaults. An empty endpoint disables tracing.
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("environment", "dev")

	// PostgreSQL defaults (matching docker-compose)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "feelori")
	v.SetDefault("postgres_password", "feelori_dev_password")
	v.SetDefault("postgres_db_name", "feelori")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment overrides explicitly. Provider API
// keys (GEMINI_API_KEY, OPENAI_API_KEY) are read by the SDK clients, not
// via viper; Validate only checks their presence when asked to.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_model", "FEELORI_GEMINI_MODEL")
	mustBind("openai_model", "FEELORI_OPENAI_MODEL")
	mustBind("embedding_dim", "FEELORI_EMBEDDING_DIM")
	mustBind("confidence_floor", "FEELORI_CONFIDENCE_FLOOR")
	mustBind("chunk_size", "FEELORI_CHUNK_SIZE")
	mustBind("chunk_overlap", "FEELORI_CHUNK_OVERLAP")
	mustBind("top_k", "FEELORI_TOP_K")
	mustBind("breaker_threshold", "FEELORI_BREAKER_THRESHOLD")
	mustBind("breaker_cooldown", "FEELORI_BREAKER_COOLDOWN")
	mustBind("limiter_capacity", "FEELORI_LIMITER_CAPACITY")
	mustBind("limiter_refill", "FEELORI_LIMITER_REFILL")
	mustBind("max_retries", "FEELORI_MAX_RETRIES")
	mustBind("backoff_base", "FEELORI_BACKOFF_BASE")
	mustBind("idle_threshold", "FEELORI_IDLE_THRESHOLD")
	mustBind("history_window", "FEELORI_HISTORY_WINDOW")
	mustBind("otlp_endpoint", "FEELORI_OTLP_ENDPOINT")
	mustBind("environment", "FEELORI_ENVIRONMENT")
	mustBind("postgres_host", "FEELORI_POSTGRES_HOST")
	mustBind("postgres_port", "FEELORI_POSTGRES_PORT")
	mustBind("postgres_user", "FEELORI_POSTGRES_USER")
	mustBind("postgres_password", "FEELORI_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "FEELORI_POSTGRES_DB")
	mustBind("postgres_ssl_mode", "FEELORI_POSTGRES_SSL_MODE")
}

// ConnString returns the PostgreSQL connection URL.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

const maskedValue = "████████"

// maskSecret masks a secret for safe logging: short secrets are fully
// masked, longer ones keep two characters at each end.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields.
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

// String implements Stringer so accidental printing never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
