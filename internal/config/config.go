package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Exchange backend. BACKEND_BASE_URL is the single host switch the
	// portal needs; the WS URL defaults to the same host.
	BackendBaseURL string
	BackendWSURL   string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConcurrency int

	// Rate feed
	PollInterval      time.Duration
	ReconnectAttempts int
	ReconnectInitial  time.Duration
	ReconnectCeiling  time.Duration

	// Wizard / KYC
	SessionTTL      time.Duration
	KYCPollInterval time.Duration

	// Cache
	AccountsCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / portal sessions
	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	// CORS
	AllowedOrigins string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:9000"),
		BackendWSURL:   getEnv("BACKEND_WS_URL", "ws://localhost:9000/socket"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxBackoff:     getEnvDuration("MAX_BACKOFF", 2*time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		PollInterval:      getEnvDuration("RATE_POLL_INTERVAL", 30*time.Second),
		ReconnectAttempts: getEnvInt("RATE_RECONNECT_ATTEMPTS", 5),
		ReconnectInitial:  getEnvDuration("RATE_RECONNECT_INITIAL", 1*time.Second),
		ReconnectCeiling:  getEnvDuration("RATE_RECONNECT_CEILING", 5*time.Second),

		SessionTTL:      getEnvDuration("WIZARD_SESSION_TTL", 2*time.Hour),
		KYCPollInterval: getEnvDuration("KYC_POLL_INTERVAL", 30*time.Second),

		AccountsCacheTTL: getEnvDuration("ACCOUNTS_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret:     getEnv("JWT_SECRET", "portal-default-dev-secret-change-me"),
		JWTAccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
