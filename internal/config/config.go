// Package config loads the core's configuration from defaults, an
// optional YAML file, and environment variable overrides.
//
// Grounded on the teacher's pkg/config/config.go: the same
// defaults-then-file-then-env layering, the same envdecode/godotenv/
// yaml.v3 stack, and the same DATABASE_URL-overrides-DSN convenience.
// Trimmed of the teacher's Server/Auth/Supabase/Tracing sections (no HTTP
// transport or auth layer belongs to this core, per spec.md §1) and of
// the teacher's RuntimeConfig field, which the retrieved pkg/config/
// config.go snapshot referenced but never defined — dropped rather than
// invented. Extended with the task-engine/market-data/provider sections
// SPEC_FULL.md §6.3 enumerates.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alphagbm/analysiscore/internal/protection"
)

// DatabaseConfig controls the Postgres connection used by internal/storage.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

// LoggingConfig controls internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// TaskEngineConfig controls internal/taskengine.
type TaskEngineConfig struct {
	MaxWorkers              int `yaml:"max_workers" env:"TASKENGINE_MAX_WORKERS"`
	QueuePollTimeoutSeconds int `yaml:"queue_poll_timeout_seconds" env:"TASKENGINE_QUEUE_POLL_TIMEOUT_SECONDS"`
	WaitingMaxWaitSeconds   int `yaml:"waiting_max_wait_seconds" env:"TASKENGINE_WAITING_MAX_WAIT_SECONDS"`
	WaitingPollIntervalSec  int `yaml:"waiting_poll_interval_seconds" env:"TASKENGINE_WAITING_POLL_INTERVAL_SECONDS"`
}

// MaxWait returns the waiting-mode poll loop's cutoff as a time.Duration.
func (t TaskEngineConfig) MaxWait() time.Duration {
	return time.Duration(t.WaitingMaxWaitSeconds) * time.Second
}

// PollInterval returns the waiting-mode poll loop's interval as a time.Duration.
func (t TaskEngineConfig) PollInterval() time.Duration {
	return time.Duration(t.WaitingPollIntervalSec) * time.Second
}

// MarketDataConfig controls internal/cache's dedup window and memory cache.
type MarketDataConfig struct {
	DedupWindowMS           int `yaml:"dedup_window_ms" env:"MARKETDATA_DEDUP_WINDOW_MS"`
	DedupWaitTimeoutSeconds int `yaml:"dedup_wait_timeout_seconds" env:"MARKETDATA_DEDUP_WAIT_TIMEOUT_SECONDS"`
	CacheMaxSize            int `yaml:"memory_max_size" env:"MARKETDATA_CACHE_MAX_SIZE"`
}

// DedupWindow returns the dedup grace window as a time.Duration.
func (m MarketDataConfig) DedupWindow() time.Duration {
	return time.Duration(m.DedupWindowMS) * time.Millisecond
}

// DedupWaitTimeout returns the dedup wait timeout as a time.Duration.
func (m MarketDataConfig) DedupWaitTimeout() time.Duration {
	return time.Duration(m.DedupWaitTimeoutSeconds) * time.Second
}

// ProviderConfig is one entry in the YAML `providers:` map, keyed by
// adapter name. Any key absent from the file falls back to the adapter's
// own built-in default (the per-provider table in SPEC_FULL.md §4.A),
// which is why every field here is left at its Go zero value rather than
// defaulted in New() — ToProtectionConfig only overrides what the YAML
// actually set.
type ProviderConfig struct {
	Enabled                 bool           `yaml:"enabled"`
	Priority                int            `yaml:"priority"`
	RequestsPerMinute       float64        `yaml:"requests_per_minute"`
	CooldownOnErrorSeconds  int            `yaml:"cooldown_on_error_seconds"`
	MaxConsecutiveFailures  int            `yaml:"max_consecutive_failures"`
	MaxConcurrent           int            `yaml:"max_concurrent"`
	CircuitFailureThreshold int            `yaml:"circuit_failure_threshold"`
	CircuitSuccessThreshold int            `yaml:"circuit_success_threshold"`
	CacheTTL                map[string]int `yaml:"cache_ttl"`
}

// ToProtectionConfig builds a protection.Config from the YAML-configured
// fields, falling back to fallback's values (typically an adapter's own
// DefaultConfig()) wherever the YAML left a field at its zero value.
func (p ProviderConfig) ToProtectionConfig(fallback protection.Config) protection.Config {
	cfg := fallback
	if p.MaxConcurrent > 0 {
		cfg.MaxConcurrent = p.MaxConcurrent
	}
	if p.CooldownOnErrorSeconds > 0 {
		cfg.CooldownSeconds = p.CooldownOnErrorSeconds
	}
	if p.MaxConsecutiveFailures > 0 {
		cfg.MaxConsecutiveFailures = p.MaxConsecutiveFailures
	}
	if p.CircuitFailureThreshold > 0 {
		cfg.CircuitFailureThreshold = p.CircuitFailureThreshold
	}
	if p.CircuitSuccessThreshold > 0 {
		cfg.CircuitSuccessThreshold = p.CircuitSuccessThreshold
	}
	if p.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = p.RequestsPerMinute
	}
	return cfg
}

// CacheTTLFor returns the configured TTL for a data type, or (0, false) if
// the provider's cache_ttl map has no entry for it.
func (p ProviderConfig) CacheTTLFor(dataType string) (time.Duration, bool) {
	seconds, ok := p.CacheTTL[dataType]
	if !ok {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// Config is the top-level configuration structure.
type Config struct {
	Database   DatabaseConfig            `yaml:"database"`
	Logging    LoggingConfig             `yaml:"logging"`
	TaskEngine TaskEngineConfig          `yaml:"task_engine"`
	MarketData MarketDataConfig          `yaml:"market_data"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
}

// New returns a Config populated with the spec's defaults (SPEC_FULL.md §6.3).
func New() *Config {
	return &Config{
		Database: DatabaseConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		TaskEngine: TaskEngineConfig{
			MaxWorkers:              3,
			QueuePollTimeoutSeconds: 1,
			WaitingMaxWaitSeconds:   300,
			WaitingPollIntervalSec:  2,
		},
		MarketData: MarketDataConfig{
			DedupWindowMS:           500,
			DedupWaitTimeoutSeconds: 30,
			CacheMaxSize:            1000,
		},
		Providers: make(map[string]ProviderConfig),
	}
}

// Load loads configuration from an optional YAML file (CONFIG_FILE env var,
// defaulting to configs/config.yaml) and then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors out when none of the target struct's tagged
		// fields were set in the environment; treat that as "no
		// overrides" so a config-file-only or defaults-only run works.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("config: decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// LoadFile reads configuration from a specific YAML file, skipping the
// CONFIG_FILE env var and environment overrides entirely.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve path %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %q: %w", expanded, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %q: %w", expanded, err)
	}
	return nil
}

// applyDatabaseURLOverride mirrors the teacher's convenience: a
// DATABASE_URL env var (the common Postgres-hosting convention) overrides
// any file-configured DSN.
func applyDatabaseURLOverride(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
