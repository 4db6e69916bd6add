// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides the Postgres connection string for the analysis store.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// StoreConfig selects and locates the analysis store backend.
type StoreConfig interface {
	DatabaseConfig
	GetStoreDriver() string
	GetSQLitePath() string
}

// TicketSourceConfig provides DSNs for the two ticket categories.
type TicketSourceConfig interface {
	GetDispatchDSN() string
	GetTurnupDSN() string
	GetPostsPerTicket() int
}

// ModelConfig provides settings for the language model providers.
type ModelConfig interface {
	GetAIProvider() string
	GetModelAPIKey() string
	GetModelBaseURL() string
	GetDefaultModel() string
	GetOpenAIAPIKey() string
	GetOpenAIBaseURL() string
	GetDefaultAssistantID() string
	GetModelTimeout() time.Duration
}

// OrchestratorConfig provides retry, polling and reuse settings.
type OrchestratorConfig interface {
	GetPhase1MaxAttempts() int
	GetPhase1BaseBackoff() time.Duration
	GetPhase1MaxBackoff() time.Duration
	GetPhase2PollInterval() time.Duration
	GetPhase2PollBackoff() float64
	GetPhase2MaxPollInterval() time.Duration
	GetPhase2MaxWait() time.Duration
	GetRequestTimeout() time.Duration
	GetFreshnessWindow() time.Duration
}

// BatchConfig provides concurrency limits for batch runs.
type BatchConfig interface {
	GetBatchMaxInFlight() int
	GetModelRequestsPerMinute() int
}

// PromptConfig provides prompt rendering limits.
type PromptConfig interface {
	GetPromptMaxChars() int
	GetPromptNoteChars() int
}

// CacheConfig provides settings for the Redis freshness cache.
type CacheConfig interface {
	GetRedisURL() string
	IsCacheEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketArtifacts() string
	IsMinIOEnabled() bool
}

// KafkaConfig provides settings for forwarding domain events to Kafka.
type KafkaConfig interface {
	GetKafkaBrokers() []string
	GetKafkaTopic() string
	IsKafkaEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
	GetHTTPRateLimitRPS() float64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Supported store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai"
	ProviderXAI    = "xai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration values.
type Config struct {
	Env      string
	LogLevel string

	StoreDriver string
	SQLitePath  string
	DatabaseURL string

	DispatchDSN    string
	TurnupDSN      string
	PostsPerTicket int

	AIProvider    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	XAIAPIKey     string
	XAIBaseURL    string
	XAIModel      string
	GeminiAPIKey  string
	GeminiModel   string
	AssistantID   string
	ModelTimeout  time.Duration

	Phase1MaxAttempts     int
	Phase1BaseBackoff     time.Duration
	Phase1MaxBackoff      time.Duration
	Phase2PollInterval    time.Duration
	Phase2PollBackoff     float64
	Phase2MaxPollInterval time.Duration
	Phase2MaxWait         time.Duration
	RequestTimeout        time.Duration
	FreshnessWindow       time.Duration

	BatchMaxInFlight       int
	ModelRequestsPerMinute int

	PromptMaxChars  int
	PromptNoteChars int

	RedisURL string

	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinioBucketArtifacts string

	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr         string
	CORSOrigins      []string
	HTTPRateLimitRPS float64
}

// StoreConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }
func (c *Config) GetStoreDriver() string { return c.StoreDriver }
func (c *Config) GetSQLitePath() string  { return c.SQLitePath }

// TicketSourceConfig implementation
func (c *Config) GetDispatchDSN() string  { return c.DispatchDSN }
func (c *Config) GetTurnupDSN() string    { return c.TurnupDSN }
func (c *Config) GetPostsPerTicket() int  { return c.PostsPerTicket }
func (c *Config) GetAIProvider() string   { return c.AIProvider }
func (c *Config) GetOpenAIAPIKey() string { return c.OpenAIAPIKey }

// GetOpenAIBaseURL returns the OpenAI endpoint used for assistant runs.
func (c *Config) GetOpenAIBaseURL() string { return c.OpenAIBaseURL }

// GetModelAPIKey returns the key for the configured Phase 1 provider.
func (c *Config) GetModelAPIKey() string {
	switch c.AIProvider {
	case ProviderXAI:
		return c.XAIAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// GetModelBaseURL returns the chat completions endpoint for the Phase 1 provider.
func (c *Config) GetModelBaseURL() string {
	if c.AIProvider == ProviderXAI {
		return c.XAIBaseURL
	}
	return c.OpenAIBaseURL
}

// GetDefaultModel returns the model used when a run does not pin one.
func (c *Config) GetDefaultModel() string {
	switch c.AIProvider {
	case ProviderXAI:
		return c.XAIModel
	case ProviderGemini:
		return c.GeminiModel
	default:
		return c.OpenAIModel
	}
}

func (c *Config) GetDefaultAssistantID() string    { return c.AssistantID }
func (c *Config) GetModelTimeout() time.Duration   { return c.ModelTimeout }
func (c *Config) GetPhase1MaxAttempts() int        { return c.Phase1MaxAttempts }
func (c *Config) GetPhase1BaseBackoff() time.Duration {
	return c.Phase1BaseBackoff
}
func (c *Config) GetPhase1MaxBackoff() time.Duration   { return c.Phase1MaxBackoff }
func (c *Config) GetPhase2PollInterval() time.Duration { return c.Phase2PollInterval }
func (c *Config) GetPhase2PollBackoff() float64        { return c.Phase2PollBackoff }
func (c *Config) GetPhase2MaxPollInterval() time.Duration {
	return c.Phase2MaxPollInterval
}
func (c *Config) GetPhase2MaxWait() time.Duration   { return c.Phase2MaxWait }
func (c *Config) GetRequestTimeout() time.Duration  { return c.RequestTimeout }
func (c *Config) GetFreshnessWindow() time.Duration { return c.FreshnessWindow }

// BatchConfig implementation
func (c *Config) GetBatchMaxInFlight() int       { return c.BatchMaxInFlight }
func (c *Config) GetModelRequestsPerMinute() int { return c.ModelRequestsPerMinute }

// PromptConfig implementation
func (c *Config) GetPromptMaxChars() int  { return c.PromptMaxChars }
func (c *Config) GetPromptNoteChars() int { return c.PromptNoteChars }

// CacheConfig implementation
func (c *Config) GetRedisURL() string  { return c.RedisURL }
func (c *Config) IsCacheEnabled() bool { return c.RedisURL != "" }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketArtifacts() string { return c.MinioBucketArtifacts }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

// KafkaConfig implementation
func (c *Config) GetKafkaBrokers() []string { return c.KafkaBrokers }
func (c *Config) GetKafkaTopic() string     { return c.KafkaTopic }
func (c *Config) IsKafkaEnabled() bool      { return len(c.KafkaBrokers) > 0 && c.KafkaTopic != "" }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string     { return c.CORSOrigins }
func (c *Config) GetHTTPRateLimitRPS() float64 { return c.HTTPRateLimitRPS }

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ticketingDSN := getEnv("TICKETING_DB_DSN", "")
	if ticketingDSN == "" && getEnv("TICKETING_DB_HOST", "") != "" {
		ticketingDSN = mysqlDSN(
			getEnv("TICKETING_DB_USER", "root"),
			getEnv("TICKETING_DB_PASSWORD", ""),
			getEnv("TICKETING_DB_HOST", "localhost"),
			getEnv("TICKETING_DB_PORT", "3306"),
			getEnv("TICKETING_DB_NAME", ""),
		)
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getEnv("ANALYSIS_STORE", StoreSQLite)),
		SQLitePath:  getEnv("ANALYSIS_DB_PATH", "data/ticketchain.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		DispatchDSN:    getEnv("DISPATCH_DB_DSN", ticketingDSN),
		TurnupDSN:      getEnv("TURNUP_DB_DSN", ticketingDSN),
		PostsPerTicket: mustInt(getEnv("POSTS_PER_TICKET", "5")),

		AIProvider:    strings.ToLower(getEnv("AI_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		XAIAPIKey:     getEnv("X_AI_API_KEY", ""),
		XAIBaseURL:    getEnv("XAI_BASE_URL", "https://api.x.ai/v1"),
		XAIModel:      getEnv("XAI_MODEL", "grok-2-latest"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AssistantID:   getEnv("ASSISTANT_ID", ""),
		ModelTimeout:  mustDuration(getEnv("MODEL_TIMEOUT", "120s")),

		Phase1MaxAttempts:     mustInt(getEnv("PHASE1_MAX_ATTEMPTS", "4")),
		Phase1BaseBackoff:     mustDuration(getEnv("PHASE1_BASE_BACKOFF", "1s")),
		Phase1MaxBackoff:      mustDuration(getEnv("PHASE1_MAX_BACKOFF", "30s")),
		Phase2PollInterval:    mustDuration(getEnv("PHASE2_POLL_INTERVAL", "5s")),
		Phase2PollBackoff:     mustFloat(getEnv("PHASE2_POLL_BACKOFF", "1.0")),
		Phase2MaxPollInterval: mustDuration(getEnv("PHASE2_MAX_POLL_INTERVAL", "30s")),
		Phase2MaxWait:         mustDuration(getEnv("PHASE2_MAX_WAIT", "10m")),
		RequestTimeout:        mustDuration(getEnv("REQUEST_TIMEOUT", "20m")),
		FreshnessWindow:       mustDuration(getEnv("FRESHNESS_WINDOW", "24h")),

		BatchMaxInFlight:       mustInt(getEnv("BATCH_MAX_IN_FLIGHT", "3")),
		ModelRequestsPerMinute: mustInt(getEnv("MODEL_REQUESTS_PER_MINUTE", "60")),

		PromptMaxChars:  mustInt(getEnv("PROMPT_MAX_CHARS", "24000")),
		PromptNoteChars: mustInt(getEnv("PROMPT_NOTE_CHARS", "150")),

		RedisURL: getEnv("REDIS_URL", ""),

		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketArtifacts: getEnv("MINIO_BUCKET_ARTIFACTS", "ticket-chain-files"),

		KafkaBrokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "ticketchain.analysis"),

		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		HTTPRateLimitRPS: mustFloat(getEnv("HTTP_RATE_LIMIT_RPS", "2")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when ANALYSIS_STORE is postgres")
		}
	default:
		return fmt.Errorf("ANALYSIS_STORE must be one of sqlite, postgres, memory; got %q", c.StoreDriver)
	}

	switch c.AIProvider {
	case ProviderOpenAI, ProviderXAI, ProviderGemini:
	default:
		return fmt.Errorf("AI_PROVIDER must be one of openai, xai, gemini; got %q", c.AIProvider)
	}

	if c.Phase1MaxAttempts < 1 {
		return fmt.Errorf("PHASE1_MAX_ATTEMPTS must be at least 1")
	}
	if c.Phase2PollInterval <= 0 || c.Phase2MaxWait <= 0 {
		return fmt.Errorf("PHASE2_POLL_INTERVAL and PHASE2_MAX_WAIT must be positive durations")
	}
	if c.Phase2PollBackoff < 1 {
		return fmt.Errorf("PHASE2_POLL_BACKOFF must be >= 1.0")
	}
	if c.BatchMaxInFlight < 1 {
		return fmt.Errorf("BATCH_MAX_IN_FLIGHT must be at least 1")
	}
	if c.PromptMaxChars < 512 {
		return fmt.Errorf("PROMPT_MAX_CHARS must be at least 512")
	}
	return nil
}

// RequireTicketSources reports a setup error when no ticketing database is configured.
func (c *Config) RequireTicketSources() error {
	if c.DispatchDSN == "" && c.TurnupDSN == "" {
		return fmt.Errorf("TICKETING_DB_DSN (or DISPATCH_DB_DSN/TURNUP_DB_DSN, or TICKETING_DB_HOST) is required")
	}
	return nil
}

// RequireModel reports a setup error when the live model provider has no credentials.
func (c *Config) RequireModel() error {
	if c.GetModelAPIKey() == "" {
		return fmt.Errorf("an API key is required for AI_PROVIDER=%s", c.AIProvider)
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for structured extraction runs")
	}
	return nil
}

func mysqlDSN(user, password, host, port, name string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4", user, password, host, port, name)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
