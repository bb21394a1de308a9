package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	AI         AIConfig
	Email      EmailConfig
	Fax        FaxConfig
	EHR        EHRConfig
	Storage    StorageConfig
	Recycle    RecycleConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RateLimitRPS   int
	RateLimitBurst int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for EventStoreDB, which backs the
// domain event bus and the append-only audit log.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

// AIConfig holds configuration for the clinical decision-support module.
// OpenAI is the primary provider; Anthropic is the failover. When both are
// unavailable the homebound agent falls back to rule-based scoring.
type AIConfig struct {
	Enabled bool

	OpenAIBaseURL string
	OpenAIKey     string
	OpenAIModel   string

	AnthropicBaseURL string
	AnthropicKey     string
	AnthropicModel   string

	RequestTimeout time.Duration
	// RequestsPerMinute throttles outbound LLM calls across all agents.
	RequestsPerMinute int
}

// EmailConfig holds SendGrid transactional email settings.
type EmailConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	FromAddress string
	FromName    string
}

// FaxConfig holds eFax provider settings for prescription transmission.
type FaxConfig struct {
	Enabled  bool
	BaseURL  string
	APIKey   string
	FromName string
}

// EHRConfig holds settings for the legacy EHR import adapter (SQL Server).
type EHRConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	PollInterval time.Duration
}

// StorageConfig holds local file storage settings for uploaded documents.
type StorageConfig struct {
	DocumentsDir string
	// MaxUploadBytes caps a single uploaded file.
	MaxUploadBytes int64
}

type RecycleConfig struct {
	// RetentionDays is how long soft-deleted rows stay restorable.
	RetentionDays int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present (development convenience).
func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			Env:            getEnv("ENV", "development"),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "harbor"),
			Password: getEnv("DB_PASSWORD", "harbor"),
			Database: getEnv("DB_NAME", "harbor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			TokenTTL:  getEnvDuration("JWT_TTL", 8*time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "harborhealth"),
		},
		AI: AIConfig{
			Enabled:           getEnvBool("AI_ENABLED", true),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o"),
			AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			AnthropicKey:      getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			RequestTimeout:    getEnvDuration("AI_REQUEST_TIMEOUT", 45*time.Second),
			RequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 30),
		},
		Email: EmailConfig{
			Enabled:     getEnvBool("EMAIL_ENABLED", false),
			BaseURL:     getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com/v3"),
			APIKey:      getEnv("SENDGRID_API_KEY", ""),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@harborhealth.example"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Harbor Health"),
		},
		Fax: FaxConfig{
			Enabled:  getEnvBool("FAX_ENABLED", false),
			BaseURL:  getEnv("EFAX_BASE_URL", ""),
			APIKey:   getEnv("EFAX_API_KEY", ""),
			FromName: getEnv("EFAX_FROM_NAME", "Harbor Health Pharmacy Desk"),
		},
		EHR: EHRConfig{
			Enabled:      getEnvBool("EHR_IMPORT_ENABLED", false),
			Host:         getEnv("EHR_DB_HOST", "localhost"),
			Port:         getEnvInt("EHR_DB_PORT", 1433),
			User:         getEnv("EHR_DB_USER", ""),
			Password:     getEnv("EHR_DB_PASSWORD", ""),
			Database:     getEnv("EHR_DB_NAME", ""),
			SSLMode:      getEnv("EHR_DB_SSLMODE", "disable"),
			PollInterval: getEnvDuration("EHR_POLL_INTERVAL", 5*time.Minute),
		},
		Storage: StorageConfig{
			DocumentsDir:   getEnv("DOCUMENTS_DIR", "./data/documents"),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 25<<20)),
		},
		Recycle: RecycleConfig{
			RetentionDays: getEnvInt("RECYCLE_RETENTION_DAYS", 30),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
