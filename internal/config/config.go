// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends selectable for the storage, archive, and events subsystems.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"

	EventsNone   = "none"
	EventsPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int `mapstructure:"port"`
	ShutdownSec int `mapstructure:"shutdown_timeout_seconds"`
}

// ScraperConfig governs job scheduling and the page walk.
type ScraperConfig struct {
	MaxConcurrentJobs int      `mapstructure:"max_concurrent_jobs"`
	QueueCapacity     int      `mapstructure:"queue_capacity"`
	MaxPages          int      `mapstructure:"max_pages"`
	JobBudgetMinutes  int      `mapstructure:"job_budget_minutes"`
	ExcerptLength     int      `mapstructure:"excerpt_length"`
	MinDelayMs        int      `mapstructure:"min_delay_ms"`
	MaxDelayMs        int      `mapstructure:"max_delay_ms"`
	UserAgent         string   `mapstructure:"user_agent"`
	BlockedDomains    []string `mapstructure:"blocked_domains"`
}

// FetchConfig configures HTTP fetch timeout and retry behavior.
type FetchConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	// BodyLenThresh is the fetched-body size in bytes under which high
	// script density promotes a page to a headless fetch.
	BodyLenThresh int `mapstructure:"body_length_threshold"`
}

// StorageConfig selects and configures the job/post store backend.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// ArchiveConfig selects and configures the raw HTML archive backend.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// EventsConfig configures job lifecycle event publishing.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLOGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("scraper.max_concurrent_jobs", 3)
	v.SetDefault("scraper.queue_capacity", 100)
	v.SetDefault("scraper.max_pages", 10)
	v.SetDefault("scraper.job_budget_minutes", 30)
	v.SetDefault("scraper.excerpt_length", 200)
	v.SetDefault("scraper.min_delay_ms", 2000)
	v.SetDefault("scraper.max_delay_ms", 5000)
	v.SetDefault("scraper.user_agent", "")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.body_length_threshold", 2048)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.min_conns", 2)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("events.backend", EventsNone)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("scraper.max_concurrent_jobs must be > 0")
	}
	if c.Scraper.MaxPages <= 0 {
		return fmt.Errorf("scraper.max_pages must be > 0")
	}
	if c.Scraper.MinDelayMs < 0 || c.Scraper.MaxDelayMs < c.Scraper.MinDelayMs {
		return fmt.Errorf("scraper.max_delay_ms must be >= scraper.min_delay_ms >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set when storage.backend is %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", StorageMemory, StoragePostgres)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.backend is %q", ArchiveLocal)
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is %q", ArchiveGCS)
		}
	default:
		return fmt.Errorf("archive.backend must be one of %q, %q, %q, %q",
			ArchiveNone, ArchiveMemory, ArchiveLocal, ArchiveGCS)
	}
	switch c.Events.Backend {
	case EventsNone:
	case EventsPubSub:
		if c.Events.ProjectID == "" || c.Events.TopicName == "" {
			return fmt.Errorf("events.project_id and events.topic_name must be set when events.backend is %q", EventsPubSub)
		}
	default:
		return fmt.Errorf("events.backend must be %q or %q", EventsNone, EventsPubSub)
	}
	return nil
}

// MinDelay returns the lower bound of the randomized fetch gap.
func (c ScraperConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper bound of the randomized fetch gap.
func (c ScraperConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// JobBudget returns the wall-clock limit for a single job run.
func (c ScraperConfig) JobBudget() time.Duration {
	return time.Duration(c.JobBudgetMinutes) * time.Minute
}

// FetchTimeout returns the per-attempt fetch timeout.
func (c FetchConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c FetchConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c FetchConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// NavTimeout returns the headless navigation timeout.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown grace period.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	if c.ShutdownSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ShutdownSec) * time.Second
}
