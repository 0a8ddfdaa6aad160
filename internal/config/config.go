// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Risk oracle
	OracleURL     string        // Base URL of the fraud scoring service (optional, scores 0 if not set)
	OracleTimeout time.Duration // Bound on a single /predict call

	// Messaging and tracing
	NATSURL      string // Publishes committed transactions when set
	NATSSubject  string
	OTLPEndpoint string // OpenTelemetry collector (optional)

	// Security
	CORSOrigins  []string
	RateLimitRPM int
	BcryptCost   int

	// Bootstrap admin, created at startup when both are set
	AdminAccountNumber string
	AdminPIN           string
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultOracleTimeout = 3 * time.Second
	DefaultNATSSubject   = "wallet.transactions"
	DefaultRateLimit     = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		OracleURL:          strings.TrimRight(os.Getenv("ORACLE_URL"), "/"),
		OracleTimeout:      getEnvDuration("ORACLE_TIMEOUT", DefaultOracleTimeout),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubject:        getEnv("NATS_SUBJECT", DefaultNATSSubject),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:        splitList(os.Getenv("CORS_ORIGINS")),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		BcryptCost:         int(getEnvInt64("BCRYPT_COST", int64(bcrypt.DefaultCost))),
		AdminAccountNumber: os.Getenv("ADMIN_ACCOUNT_NUMBER"),
		AdminPIN:           os.Getenv("ADMIN_PIN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.OracleTimeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be positive")
	}
	if c.OracleURL != "" && !strings.HasPrefix(c.OracleURL, "http://") && !strings.HasPrefix(c.OracleURL, "https://") {
		return fmt.Errorf("ORACLE_URL must be an http(s) URL")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if (c.AdminAccountNumber == "") != (c.AdminPIN == "") {
		return fmt.Errorf("ADMIN_ACCOUNT_NUMBER and ADMIN_PIN must be set together")
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
