package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	APIPort int

	// Provider API
	ProviderBaseURL   string
	ProviderTopic     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	// Watch lifecycle
	WatchRenewalThreshold time.Duration
	WatchCheckInterval    time.Duration

	// Webhook delivery
	WebhookTimeout time.Duration

	// Security
	APIKey         string
	CronSecret     string
	AppEnv         string
	AllowedOrigins []string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	// Required: PROVIDER_BASE_URL
	cfg.ProviderBaseURL = os.Getenv("PROVIDER_BASE_URL")
	if cfg.ProviderBaseURL == "" {
		return nil, fmt.Errorf("PROVIDER_BASE_URL is required but not set")
	}

	// API_PORT (default: 8080)
	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		cfg.APIPort = 8080
	} else {
		port, err := strconv.Atoi(apiPort)
		if err != nil {
			return nil, fmt.Errorf("API_PORT must be a valid integer: %w", err)
		}
		cfg.APIPort = port
	}

	cfg.ProviderTopic = os.Getenv("PROVIDER_TOPIC")
	cfg.OAuthClientID = os.Getenv("OAUTH_CLIENT_ID")
	cfg.OAuthClientSecret = os.Getenv("OAUTH_CLIENT_SECRET")
	cfg.OAuthTokenURL = os.Getenv("OAUTH_TOKEN_URL")

	var err error
	// WATCH_RENEWAL_THRESHOLD (default: 24h)
	if cfg.WatchRenewalThreshold, err = durationEnv("WATCH_RENEWAL_THRESHOLD", 24*time.Hour); err != nil {
		return nil, err
	}

	// WATCH_CHECK_INTERVAL (default: 24h)
	if cfg.WatchCheckInterval, err = durationEnv("WATCH_CHECK_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	// WEBHOOK_TIMEOUT (default: 10s)
	if cfg.WebhookTimeout, err = durationEnv("WEBHOOK_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// Security configuration
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.CronSecret = os.Getenv("CRON_SECRET")
	cfg.AppEnv = os.Getenv("APP_ENV")
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}

	// ALLOWED_ORIGINS (comma-separated, for websocket origin checks)
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	// LOG_LEVEL (default: info)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// durationEnv reads a duration environment variable with a default
func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}
	return d, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Production-specific validation
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.ProviderBaseURL == "" {
		return fmt.Errorf("ProviderBaseURL cannot be empty")
	}
	if c.WatchRenewalThreshold <= 0 {
		return fmt.Errorf("WatchRenewalThreshold must be positive")
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WebhookTimeout must be positive")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required in production")
	}

	// Check for sslmode=disable in database URL
	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	return nil
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.String("provider_base_url", c.ProviderBaseURL),
		slog.Duration("watch_renewal_threshold", c.WatchRenewalThreshold),
		slog.Duration("watch_check_interval", c.WatchCheckInterval),
		slog.Duration("webhook_timeout", c.WebhookTimeout),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.Bool("cron_secret_set", c.CronSecret != ""),
	)
}
