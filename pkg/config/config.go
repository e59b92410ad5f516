package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	// Listen address for the HTTP API, e.g. ":8080"
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" or "json"

	Store     StoreConfig      `yaml:"store"`
	Workers   WorkerConfig     `yaml:"workers"`
	Scoring   ScoringConfig    `yaml:"scoring"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Cache     CacheConfig      `yaml:"cache"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Providers []ProviderConfig `yaml:"providers"`
	Tracing   TracingConfig    `yaml:"tracing"`

	// Tiers maps a tier name to the providers consulted for it.
	// Tiers not listed here use every enabled provider.
	Tiers map[string][]string `yaml:"tiers"`
}

// StoreConfig selects and tunes the job store backend
type StoreConfig struct {
	Driver          string `yaml:"driver"` // "memory", "sqlite", "postgres"
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"` // e.g. "30m"
}

// WorkerConfig tunes the job processing pool
type WorkerConfig struct {
	Count        int    `yaml:"count"`
	PollInterval string `yaml:"poll_interval"` // e.g. "250ms"
}

// ScoringConfig tunes provider fan-out and aggregation
type ScoringConfig struct {
	JobTimeout       string      `yaml:"job_timeout"` // e.g. "30s"
	MinSuccessful    int         `yaml:"min_successful"`
	StrictMinSuccess bool        `yaml:"strict_min_success"`
	Retry            RetryConfig `yaml:"retry"`
}

// RetryConfig tunes per-provider retry behavior
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	MinBackoff  string `yaml:"min_backoff"` // e.g. "500ms"
	MaxBackoff  string `yaml:"max_backoff"` // e.g. "10s"
}

// BreakerConfig tunes the per-provider circuit breaker
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	Window           string `yaml:"window"`          // e.g. "60s"
	HalfOpenDelay    string `yaml:"half_open_delay"` // e.g. "60s"
}

// CacheConfig tunes the scoring result cache
type CacheConfig struct {
	Enabled         bool   `yaml:"enabled"`
	TTL             string `yaml:"ttl"`              // e.g. "1h"
	JanitorInterval string `yaml:"janitor_interval"` // e.g. "5m"
}

// RateLimitConfig tunes request throttling
type RateLimitConfig struct {
	// Window is the fixed quota window for per-tenant limits,
	// e.g. "60s". Tenant quotas come from the tenant record.
	Window string `yaml:"window"`
	// BurstRPS and Burst bound per-client request rates at the HTTP
	// edge, before tenant resolution.
	BurstRPS float64 `yaml:"burst_rps"`
	Burst    int     `yaml:"burst"`
}

// ProviderConfig describes one upstream scoring provider
type ProviderConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Enabled  bool   `yaml:"enabled"`
	Timeout  string `yaml:"timeout"` // e.g. "5s"
}

// TracingConfig tunes OpenTelemetry export
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP HTTP endpoint host:port
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		Store: StoreConfig{
			Driver: "memory",
		},
		Workers: WorkerConfig{
			Count:        4,
			PollInterval: "250ms",
		},
		Scoring: ScoringConfig{
			JobTimeout:    "30s",
			MinSuccessful: 2,
			Retry: RetryConfig{
				MaxAttempts: 3,
				MinBackoff:  "500ms",
				MaxBackoff:  "10s",
			},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Window:           "60s",
			HalfOpenDelay:    "60s",
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             "1h",
			JanitorInterval: "5m",
		},
		RateLimit: RateLimitConfig{
			Window:   "60s",
			BurstRPS: 50,
			Burst:    100,
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for
// unset fields
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks durations and provider entries
func (c *Config) Validate() error {
	durations := map[string]string{
		"workers.poll_interval":     c.Workers.PollInterval,
		"scoring.job_timeout":       c.Scoring.JobTimeout,
		"scoring.retry.min_backoff": c.Scoring.Retry.MinBackoff,
		"scoring.retry.max_backoff": c.Scoring.Retry.MaxBackoff,
		"breaker.window":            c.Breaker.Window,
		"breaker.half_open_delay":   c.Breaker.HalfOpenDelay,
		"cache.ttl":                 c.Cache.TTL,
		"cache.janitor_interval":    c.Cache.JanitorInterval,
		"rate_limit.window":         c.RateLimit.Window,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}

	if c.Store.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Store.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid store.conn_max_lifetime: %w", err)
		}
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.Endpoint == "" {
			return fmt.Errorf("provider %s: endpoint is required", p.Name)
		}
		if p.Timeout != "" {
			if _, err := time.ParseDuration(p.Timeout); err != nil {
				return fmt.Errorf("provider %s: invalid timeout: %w", p.Name, err)
			}
		}
	}

	for tier, names := range c.Tiers {
		for _, name := range names {
			if !seen[name] {
				return fmt.Errorf("tier %s: unknown provider %q", tier, name)
			}
		}
	}
	return nil
}

// Duration parses a configured duration string, falling back when
// empty or malformed
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ExampleConfig is a documented starting point for a server config
const ExampleConfig = `# Scoring server configuration

listen_addr: ":8080"
log_level: "info"
log_format: "text"

store:
  driver: "sqlite"          # memory, sqlite, or postgres
  dsn: "scoreflow.db"

workers:
  count: 4
  poll_interval: "250ms"

scoring:
  job_timeout: "30s"        # overall deadline per job
  min_successful: 2         # providers needed for normal confidence
  strict_min_success: false # fail jobs below min_successful instead of flagging
  retry:
    max_attempts: 3
    min_backoff: "500ms"
    max_backoff: "10s"

breaker:
  failure_threshold: 5      # failures within the window before opening
  window: "60s"
  half_open_delay: "60s"

cache:
  enabled: true
  ttl: "1h"
  janitor_interval: "5m"

rate_limit:
  window: "60s"             # fixed window for per-tenant quotas
  burst_rps: 50             # per-client request rate at the HTTP edge
  burst: 100

providers:
  - name: "acme-score"
    endpoint: "https://api.acme-score.example/v1/score"
    api_key: "${ACME_API_KEY}"
    enabled: true
    timeout: "5s"
  - name: "trustgraph"
    endpoint: "https://trustgraph.example/score"
    api_key: "${TRUSTGRAPH_API_KEY}"
    enabled: true
    timeout: "5s"

tiers:
  free: ["acme-score"]
  premium: ["acme-score", "trustgraph"]

tracing:
  enabled: false
  endpoint: "localhost:4318"
`
