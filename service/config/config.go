package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// Load validates it at startup so a misconfigured process never starts polling.
type Config struct {
	// Upstream API configuration
	WhaleAPIKey        string        `env:"WHALE_API_KEY"`
	WhaleAPIURL        string        `env:"WHALE_API_URL" envDefault:"https://api.whale-alert.io/v1"`
	FetchRetries       int           `env:"FETCH_RETRIES" envDefault:"3"`
	FetchTimeout       time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	FetchRatePerMinute int           `env:"FETCH_RATE_PER_MINUTE" envDefault:"10"`

	// Polling configuration
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"60s"`
	MinValueUSD  int64         `env:"MIN_VALUE_USD" envDefault:"500000"`
	HistoryLimit time.Duration `env:"HISTORY_LIMIT" envDefault:"3599s"`
	FetchLimit   int           `env:"FETCH_LIMIT" envDefault:"100"`

	// Storage configuration
	DatabaseURL string `env:"DATABASE_URL"`
	DataDir     string `env:"DATA_DIR" envDefault:"data"`
	StatusFile  string `env:"STATUS_FILE" envDefault:"data/status.yaml"`

	// NATS configuration
	NATSURL string `env:"NATS_URL"`

	// Temporal configuration; an empty host runs the built-in poll loop
	TemporalHost      string `env:"TEMPORAL_HOST"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE" envDefault:"default"`
	TemporalTaskQueue string `env:"TEMPORAL_TASK_QUEUE" envDefault:"whalealert"`

	// Server configuration
	ServerAddr  string        `env:"SERVER_ADDR" envDefault:":8080"`
	MetricsAddr string        `env:"METRICS_ADDR" envDefault:":9091"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"15s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, then the environment, and validates the result.
// Returns an error if any configuration is missing or invalid.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is like Load but reads the given dotenv files. Missing files are
// skipped; variables already set in the environment take precedence.
func LoadFrom(envFiles ...string) (*Config, error) {
	var errs []error

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for process initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval))
	}

	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %v", c.HistoryLimit))
	}

	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("FETCH_RETRIES cannot be negative"))
	}

	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive"))
	}

	if c.FetchRatePerMinute <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_RATE_PER_MINUTE must be positive"))
	}

	if c.MinValueUSD < 0 {
		errs = append(errs, fmt.Errorf("MIN_VALUE_USD cannot be negative"))
	}

	if c.FetchLimit < 1 || c.FetchLimit > 100 {
		errs = append(errs, fmt.Errorf("FETCH_LIMIT must be between 1 and 100, got %d", c.FetchLimit))
	}

	if c.WhaleAPIURL == "" {
		errs = append(errs, fmt.Errorf("WHALE_API_URL is required"))
	}

	if c.StatusFile == "" {
		errs = append(errs, fmt.Errorf("STATUS_FILE is required"))
	}

	if c.TemporalHost != "" && c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TEMPORAL_TASK_QUEUE is required when TEMPORAL_HOST is set"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ValidateFetch checks the settings needed to call the upstream API.
func (c *Config) ValidateFetch() error {
	if c.WhaleAPIKey == "" {
		return fmt.Errorf("configuration validation failed: [WHALE_API_KEY is required]")
	}
	return nil
}
