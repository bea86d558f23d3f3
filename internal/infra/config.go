package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiModel      string
	GeminiAuditModel string

	MaxAttempts      int
	QualityThreshold float64
	AttemptTimeout   time.Duration
	JobTimeout       time.Duration

	GuestDailyLimit int
	UserDailyLimit  int

	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/assets"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiAuditModel: getEnv("GEMINI_AUDIT_MODEL", "gemini-2.5-flash"),

		MaxAttempts:      getEnvInt("MAX_ATTEMPTS", 3),
		QualityThreshold: getEnvFloat("QUALITY_THRESHOLD", 70),
		AttemptTimeout:   time.Second * time.Duration(getEnvInt("ATTEMPT_TIMEOUT_SECONDS", 60)),
		JobTimeout:       time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 120)),

		GuestDailyLimit: getEnvInt("GUEST_DAILY_LIMIT", 5),
		UserDailyLimit:  getEnvInt("USER_DAILY_LIMIT", 20),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitEnvList(getEnv("ALLOWED_ORIGINS", "")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitEnvList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
