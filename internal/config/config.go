// ABOUTME: Configuration loading and parsing for the gateway
// ABOUTME: YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Logging  LoggingConfig           `yaml:"logging"`
	Metrics  MetricsConfig           `yaml:"metrics"`
	Engine   EngineConfig            `yaml:"engine"`
	Sources  map[string]SourceConfig `yaml:"sources"`
	Dedupe   DedupeConfig            `yaml:"dedupe"`
	Breaker  BreakerConfig           `yaml:"breaker"`
	Sessions SessionsConfig          `yaml:"sessions"`
	Retry    RetryConfig             `yaml:"retry"`
}

// ServerConfig holds listener addresses.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EngineConfig locates the external processing engine.
type EngineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// SourceConfig is the per-source admission policy.
type SourceConfig struct {
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Validation ValidationConfig `yaml:"validation"`
	Auth       AuthConfig       `yaml:"auth"`
}

// RateLimitConfig is a fixed-window budget.
type RateLimitConfig struct {
	Window      time.Duration `yaml:"-"`
	MaxRequests int           `yaml:"max_requests"`

	WindowRaw string `yaml:"window"`
}

// ValidationConfig bounds accepted content.
type ValidationConfig struct {
	MinLength       int      `yaml:"min_length"`
	MaxLength       int      `yaml:"max_length"`
	BlockedPatterns []string `yaml:"blocked_patterns"`
}

// AuthConfig is the per-source credential policy. Only presence and shape
// are checked; issuing or verifying credentials is out of scope.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Scheme  string `yaml:"scheme"`
	Secret  string `yaml:"secret"`
}

// DedupeConfig tunes delivery deduplication for redelivered webhooks.
type DedupeConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// BreakerConfig tunes the per-platform circuit breakers.
type BreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	MinimumRequests       int           `yaml:"minimum_requests"`
	SlowCallRateThreshold float64       `yaml:"slow_call_rate_threshold"`
	MonitoringPeriod      time.Duration `yaml:"-"`
	ResetTimeout          time.Duration `yaml:"-"`
	SlowCallThreshold     time.Duration `yaml:"-"`

	MonitoringPeriodRaw  string `yaml:"monitoring_period"`
	ResetTimeoutRaw      string `yaml:"reset_timeout"`
	SlowCallThresholdRaw string `yaml:"slow_call_threshold"`
}

// SessionsConfig tunes the session store.
type SessionsConfig struct {
	// Backend selects "memory" or "sqlite".
	Backend           string        `yaml:"backend"`
	Path              string        `yaml:"path"`
	MaxPerUser        int           `yaml:"max_per_user"`
	DefaultExpiration time.Duration `yaml:"-"`
	CleanupInterval   time.Duration `yaml:"-"`

	DefaultExpirationRaw string `yaml:"default_expiration"`
	CleanupIntervalRaw   string `yaml:"cleanup_interval"`
}

// RetryConfig tunes dispatch retries.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	InitialDelay      time.Duration `yaml:"-"`

	InitialDelayRaw string `yaml:"initial_delay"`
}

// Default returns the stock configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{HTTPAddr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Path: "/metrics"},
		Engine:  EngineConfig{BaseURL: "http://localhost:9090", Timeout: 30 * time.Second},
		Dedupe: DedupeConfig{
			Enabled:    true,
			MaxEntries: 10000,
			TTL:        10 * time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold:      5,
			MinimumRequests:       5,
			SlowCallRateThreshold: 0.8,
			MonitoringPeriod:      time.Minute,
			ResetTimeout:          30 * time.Second,
			SlowCallThreshold:     10 * time.Second,
		},
		Sessions: SessionsConfig{
			Backend:           "memory",
			MaxPerUser:        5,
			DefaultExpiration: 30 * time.Minute,
			CleanupInterval:   5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BackoffMultiplier: 2,
			InitialDelay:      500 * time.Millisecond,
		},
	}
}

// Load reads a configuration file, expands ${VAR} references, parses
// duration strings and validates the result. Fields absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the environment value, or empty string
// when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url is required")
	}
	if c.Sessions.Backend != "memory" && c.Sessions.Backend != "sqlite" {
		return fmt.Errorf("sessions.backend must be %q or %q, got %q", "memory", "sqlite", c.Sessions.Backend)
	}
	if c.Sessions.Backend == "sqlite" && c.Sessions.Path == "" {
		return fmt.Errorf("sessions.path is required for the sqlite backend")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Breaker.SlowCallRateThreshold < 0 || c.Breaker.SlowCallRateThreshold > 1 {
		return fmt.Errorf("breaker.slow_call_rate_threshold must be within [0, 1]")
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values.
// Empty raw fields keep their current (default) values.
func parseDurations(cfg *Config) error {
	parse := func(raw string, dst *time.Duration, field string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", field, raw, err)
		}
		*dst = d
		return nil
	}

	if err := parse(cfg.Engine.TimeoutRaw, &cfg.Engine.Timeout, "engine.timeout"); err != nil {
		return err
	}
	if err := parse(cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL, "dedupe.ttl"); err != nil {
		return err
	}
	if err := parse(cfg.Breaker.MonitoringPeriodRaw, &cfg.Breaker.MonitoringPeriod, "breaker.monitoring_period"); err != nil {
		return err
	}
	if err := parse(cfg.Breaker.ResetTimeoutRaw, &cfg.Breaker.ResetTimeout, "breaker.reset_timeout"); err != nil {
		return err
	}
	if err := parse(cfg.Breaker.SlowCallThresholdRaw, &cfg.Breaker.SlowCallThreshold, "breaker.slow_call_threshold"); err != nil {
		return err
	}
	if err := parse(cfg.Sessions.DefaultExpirationRaw, &cfg.Sessions.DefaultExpiration, "sessions.default_expiration"); err != nil {
		return err
	}
	if err := parse(cfg.Sessions.CleanupIntervalRaw, &cfg.Sessions.CleanupInterval, "sessions.cleanup_interval"); err != nil {
		return err
	}
	if err := parse(cfg.Retry.InitialDelayRaw, &cfg.Retry.InitialDelay, "retry.initial_delay"); err != nil {
		return err
	}

	for name, src := range cfg.Sources {
		if err := parse(src.RateLimit.WindowRaw, &src.RateLimit.Window, "sources."+name+".rate_limit.window"); err != nil {
			return err
		}
		cfg.Sources[name] = src
	}
	return nil
}
