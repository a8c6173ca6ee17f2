// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
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

	// Generation provider
	ProviderBaseURL string
	ProviderAPIKey  string
	PrimaryModel    string // highest-quality tier, tried first
	FallbackModel   string // cheaper/more-available tier
	ProviderTimeout time.Duration

	// Metering
	DefaultTier   string        // tier assumed for tenants with no record
	AlertCooldown time.Duration // minimum gap between alerts of the same class

	// Notifications
	EmailAPIURL string // transactional email endpoint (empty = log-only sender)
	EmailAPIKey string
	EmailFrom   string

	// Billing
	StripeAPIKey string // empty = overage reporting disabled

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultPrimaryModel    = "gemini-2.5-flash-image"
	DefaultFallbackModel   = "gemini-2.0-flash-image"
	DefaultProviderTimeout = 60 * time.Second
	DefaultTierName        = "essential"
	DefaultAlertCooldown   = 24 * time.Hour
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ProviderBaseURL: os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		PrimaryModel:    getEnv("PRIMARY_MODEL", DefaultPrimaryModel),
		FallbackModel:   getEnv("FALLBACK_MODEL", DefaultFallbackModel),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", DefaultProviderTimeout),
		DefaultTier:     getEnv("DEFAULT_TIER", DefaultTierName),
		AlertCooldown:   getEnvDuration("ALERT_COOLDOWN", DefaultAlertCooldown),
		EmailAPIURL:     os.Getenv("EMAIL_API_URL"),
		EmailAPIKey:     os.Getenv("EMAIL_API_KEY"),
		EmailFrom:       getEnv("EMAIL_FROM", "billing@pixelmint.app"),
		StripeAPIKey:    os.Getenv("STRIPE_API_KEY"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ProviderAPIKey == "" {
		return fmt.Errorf("PROVIDER_API_KEY is required")
	}

	if c.PrimaryModel == "" || c.FallbackModel == "" {
		return fmt.Errorf("PRIMARY_MODEL and FALLBACK_MODEL must be set")
	}

	if c.PrimaryModel == c.FallbackModel {
		return fmt.Errorf("PRIMARY_MODEL and FALLBACK_MODEL must differ")
	}

	if c.EmailAPIURL != "" && c.EmailAPIKey == "" {
		return fmt.Errorf("EMAIL_API_KEY is required when EMAIL_API_URL is set")
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
