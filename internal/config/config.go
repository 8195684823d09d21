// Package config manages application configuration
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by the config.
const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"

	NotifyBackendLog  = "log"
	NotifyBackendAMQP = "amqp"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	BaseURL     string // public URL of this API, used for the OAuth redirect
	AppURL      string // public URL of the frontend, used in emailed links

	AllowedOrigins []string
	TrustProxy     bool // honour X-Forwarded-For when deriving the client IP

	// Database
	DatabaseURL string

	// Security
	SecretKey string // For JWT signing

	// Token lifetimes
	SessionDuration time.Duration
	ResetTokenTTL   time.Duration
	VerifyTokenTTL  time.Duration
	CodeTTL         time.Duration

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Shared state for the rate limiter and verification codes
	StateBackend  string
	RedisURL      string
	SweepInterval time.Duration

	// Global per-IP throttle
	GlobalRPS   float64
	GlobalBurst int

	// Notifications
	NotifyBackend string
	AMQPURL       string
	AMQPExchange  string
	AMQPQueue     string
	NotifyTimeout time.Duration

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	OAuthTimeout       time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	baseURL := strings.TrimRight(getEnv("FINTRACK_BASE_URL", "http://localhost:8080"), "/")

	return &Config{
		Port:           getEnv("FINTRACK_PORT", "8080"),
		Environment:    strings.ToLower(getEnv("FINTRACK_ENV", "development")),
		BaseURL:        baseURL,
		AppURL:         strings.TrimRight(getEnv("FINTRACK_APP_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: parseList(getEnv("FINTRACK_ALLOWED_ORIGINS", "http://localhost:3000")),
		TrustProxy:     getBoolEnv("FINTRACK_TRUST_PROXY", false),

		DatabaseURL: getEnv("FINTRACK_DATABASE_URL", "fintrack.db"),

		SecretKey: getEnv("FINTRACK_SECRET_KEY", os.Getenv("JWT_SECRET")),

		SessionDuration: getDurationEnv("FINTRACK_SESSION_DURATION", 7*24*time.Hour),
		ResetTokenTTL:   time.Hour,
		VerifyTokenTTL:  24 * time.Hour,
		CodeTTL:         10 * time.Minute,

		LogLevel:  getEnv("FINTRACK_LOG_LEVEL", "info"),
		LogFormat: getEnv("FINTRACK_LOG_FORMAT", "text"),

		StateBackend:  strings.ToLower(getEnv("FINTRACK_STATE_BACKEND", StateBackendMemory)),
		RedisURL:      getEnv("FINTRACK_REDIS_URL", ""),
		SweepInterval: getDurationEnv("FINTRACK_SWEEP_INTERVAL", time.Minute),

		GlobalRPS:   getFloatEnv("FINTRACK_GLOBAL_RPS", 10),
		GlobalBurst: getIntEnv("FINTRACK_GLOBAL_BURST", 40),

		NotifyBackend: strings.ToLower(getEnv("FINTRACK_NOTIFY_BACKEND", NotifyBackendLog)),
		AMQPURL:       getEnv("FINTRACK_AMQP_URL", ""),
		AMQPExchange:  getEnv("FINTRACK_AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:     getEnv("FINTRACK_AMQP_QUEUE", "notifications"),
		NotifyTimeout: getDurationEnv("FINTRACK_NOTIFY_TIMEOUT", 10*time.Second),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URI", baseURL+"/api/auth/google/callback"),
		OAuthTimeout:       getDurationEnv("FINTRACK_OAUTH_TIMEOUT", 10*time.Second),
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SecretKey == "" {
		problems = append(problems, "FINTRACK_SECRET_KEY (or JWT_SECRET) must be set")
	}

	if c.DatabaseURL == "" {
		problems = append(problems, "database URL cannot be empty")
	}

	switch c.StateBackend {
	case StateBackendMemory:
	case StateBackendRedis:
		if c.RedisURL == "" {
			problems = append(problems, "FINTRACK_REDIS_URL is required when the state backend is redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid state backend '%s': must be memory or redis", c.StateBackend))
	}

	switch c.NotifyBackend {
	case NotifyBackendLog:
	case NotifyBackendAMQP:
		if c.AMQPURL == "" {
			problems = append(problems, "FINTRACK_AMQP_URL is required when the notify backend is amqp")
		} else if u, err := url.Parse(c.AMQPURL); err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s'", c.AMQPURL))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid notify backend '%s': must be log or amqp", c.NotifyBackend))
	}

	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		problems = append(problems, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}

	if c.SessionDuration <= 0 {
		problems = append(problems, "session duration must be positive")
	}
	if c.GlobalRPS <= 0 || c.GlobalBurst <= 0 {
		problems = append(problems, "global rate limit RPS and burst must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c *Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
