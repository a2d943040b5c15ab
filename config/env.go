package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// LoadEnv loads the .env file if one exists. Variables already set in the
// environment win over the file. It runs before InitLogger so LOG_LEVEL can
// come from the file; the caller logs the returned error once the logger exists.
func LoadEnv() error {
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// GetEnv returns the trimmed value of an environment variable
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvDefault returns the value of key or fallback when it is unset
func GetEnvDefault(key, fallback string) string {
	if value := GetEnv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvInt parses an integer variable, falling back on missing or malformed values
func GetEnvInt(key string, fallback int) int {
	raw := GetEnv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		Logger.Warn("Invalid integer in environment, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Int("default", fallback),
		)
		return fallback
	}
	return value
}

// GetEnvDuration parses a Go duration ("5s", "24h"). Bare integers are read as milliseconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		Logger.Warn("Invalid duration in environment, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Duration("default", fallback),
		)
		return fallback
	}
	return value
}

// Settings holds the process-wide knobs. They are read once at startup.
type Settings struct {
	Port          string
	APIBaseURL    string
	CorsOrigins   string
	RedisAddress  string
	RedisPassword string

	OlympiaBaseURL     string
	OlympiaToken       string
	IssuerMinInterval  time.Duration
	IssuerTimeout      time.Duration
	MaxConcurrency     int
	MaxRetries         int
	RetryBackoffBase   time.Duration
	WebhookTimeout     time.Duration
	MaxRowsPerImport   int
	ImportQueueRetries int
	ImportTaskTimeout  time.Duration

	UploadDir  string
	ReportsDir string
	FileTTL    time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

// LoadSettings reads Settings from the environment
func LoadSettings() Settings {
	s := Settings{
		Port:          GetEnvDefault("PORT", "8080"),
		APIBaseURL:    strings.TrimSuffix(GetEnvDefault("API_BASE_URL", "http://localhost:8080"), "/"),
		CorsOrigins:   GetEnvDefault("CORS_ORIGINS", "http://localhost:5173"),
		RedisAddress:  GetEnvDefault("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD"),

		OlympiaBaseURL:     strings.TrimSuffix(GetEnv("OLYMPIA_BASE_URL"), "/"),
		OlympiaToken:       GetEnv("OLYMPIA_TOKEN"),
		IssuerMinInterval:  time.Duration(GetEnvInt("ISSUER_MIN_INTERVAL_MS", 100)) * time.Millisecond,
		IssuerTimeout:      GetEnvDuration("ISSUER_TIMEOUT", 30*time.Second),
		MaxConcurrency:     GetEnvInt("MAX_CONCURRENCY", 12),
		MaxRetries:         GetEnvInt("MAX_RETRIES", 5),
		RetryBackoffBase:   GetEnvDuration("RETRY_BACKOFF_BASE", time.Second),
		WebhookTimeout:     GetEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		MaxRowsPerImport:   GetEnvInt("MAX_ROWS_PER_IMPORT", 2000),
		ImportQueueRetries: GetEnvInt("IMPORT_QUEUE_MAX_RETRY", 0),
		ImportTaskTimeout:  GetEnvDuration("IMPORT_TASK_TIMEOUT", 6*time.Hour),

		UploadDir:  GetEnvDefault("UPLOAD_DIR", "./uploads"),
		ReportsDir: GetEnvDefault("REPORTS_DIR", "./public/files"),
		FileTTL:    GetEnvDuration("FILE_TTL", 24*time.Hour),

		SMTPHost:     GetEnv("SMTP_HOST"),
		SMTPPort:     GetEnvInt("SMTP_PORT", 25),
		SMTPUser:     GetEnv("SMTP_USER"),
		SMTPPassword: GetEnv("SMTP_PASSWORD"),
		SMTPFrom:     GetEnv("SMTP_FROM"),
	}

	if s.MaxConcurrency <= 0 {
		s.MaxConcurrency = 12
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 5
	}
	if s.ImportQueueRetries < 0 {
		s.ImportQueueRetries = 0
	}
	return s
}
