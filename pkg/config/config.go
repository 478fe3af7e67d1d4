// Package config provides the unified configuration for the tap.
// A single Config structure carries the Sailthru credentials, the sync
// start date, and the operational knobs for retries, rate limiting and
// export job polling. Defaults mirror the Sailthru API's documented
// behavior; everything operational is overridable from the config file
// or environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultRequestTimeout is applied when request_timeout is absent or zero.
const DefaultRequestTimeout = 300 * time.Second

// Config is the single configuration structure for the tap
type Config struct {
	// Credentials and identity
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	APISecret string `mapstructure:"api_secret" json:"api_secret"`
	UserAgent string `mapstructure:"user_agent" json:"user_agent"`

	// StartDate anchors the first incremental sync, RFC 3339
	StartDate string `mapstructure:"start_date" json:"start_date"`

	// RequestTimeout bounds every API call
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// Reliability settings for transient failures
	Retry RetryConfig `mapstructure:"retry" json:"retry"`

	// RateLimitPerSec limits API calls per second (0 = unlimited)
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec" json:"rate_limit_per_sec"`

	// Export job polling
	JobPollInterval time.Duration `mapstructure:"job_poll_interval" json:"job_poll_interval"`
	JobPollTimeout  time.Duration `mapstructure:"job_poll_timeout" json:"job_poll_timeout"`

	// DateWindowDays caps the day span of a single purchase log export
	// request; longer ranges are split into abutting sub-windows
	DateWindowDays int `mapstructure:"date_window_days" json:"date_window_days"`

	// Observability
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// RetryConfig controls the exponential backoff applied to transient failures
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" json:"max_attempts"`
	InitialDelay    time.Duration `mapstructure:"initial_delay" json:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay" json:"max_delay"`
	Multiplier      float64       `mapstructure:"multiplier" json:"multiplier"`
	RandomizeFactor float64       `mapstructure:"randomize_factor" json:"randomize_factor"`
}

// New returns a Config populated with defaults
func New() *Config {
	return &Config{
		RequestTimeout: DefaultRequestTimeout,
		Retry: RetryConfig{
			MaxAttempts:     5,
			InitialDelay:    time.Second,
			MaxDelay:        2 * time.Minute,
			Multiplier:      2.0,
			RandomizeFactor: 0.25,
		},
		RateLimitPerSec: 0,
		JobPollInterval: time.Second,
		JobPollTimeout:  10 * time.Minute,
		DateWindowDays:  1,
		LogLevel:        "info",
	}
}

// Load reads configuration from the given JSON file, with environment
// variables (TAP_SAILTHRU_*) overriding file values
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("tap_sailthru")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := New()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay", cfg.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("retry.multiplier", cfg.Retry.Multiplier)
	v.SetDefault("retry.randomize_factor", cfg.Retry.RandomizeFactor)
	v.SetDefault("rate_limit_per_sec", cfg.RateLimitPerSec)
	v.SetDefault("job_poll_interval", cfg.JobPollInterval)
	v.SetDefault("job_poll_timeout", cfg.JobPollTimeout)
	v.SetDefault("date_window_days", cfg.DateWindowDays)
	v.SetDefault("log_level", cfg.LogLevel)
}

// normalize repairs zero values that have documented fallbacks
func (c *Config) normalize() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = time.Second
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.JobPollInterval <= 0 {
		c.JobPollInterval = time.Second
	}
	if c.JobPollTimeout <= 0 {
		c.JobPollTimeout = 10 * time.Minute
	}
	if c.DateWindowDays <= 0 {
		c.DateWindowDays = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.APISecret == "" {
		return fmt.Errorf("api_secret is required")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	if c.StartDate == "" {
		return fmt.Errorf("start_date is required")
	}
	if _, err := c.StartTime(); err != nil {
		return fmt.Errorf("start_date is not a valid RFC 3339 timestamp: %w", err)
	}
	if c.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	return nil
}

// StartTime parses the configured start date
func (c *Config) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, c.StartDate)
}
