// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/dates"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/profile"
)

// EnvPrefix is the prefix of environment overrides, e.g. SITEMAPCRAWLER_CRAWL_WORKERS.
const EnvPrefix = "SITEMAPCRAWLER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
	Report   ReportConfig   `mapstructure:"report"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig governs the window and the worker pool of a run.
type CrawlConfig struct {
	StartYear       int           `mapstructure:"start_year"`
	EndYear         int           `mapstructure:"end_year"`
	Workers         int           `mapstructure:"workers"`
	QueueDepth      int           `mapstructure:"queue_depth"`
	Delay           time.Duration `mapstructure:"delay"`
	MaxSitemaps     int           `mapstructure:"max_sitemaps"`
	MaxRPSPerHost   float64       `mapstructure:"max_rps_per_host"`
	UserAgent       string        `mapstructure:"user_agent"`
	DefaultCategory string        `mapstructure:"default_category"`
}

// HTTPConfig configures the sitemap fetcher.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// ProfilesConfig points at rule profile documents. Empty paths select the
// built-in profiles.
type ProfilesConfig struct {
	File            string `mapstructure:"file"`
	SharedListsFile string `mapstructure:"shared_lists_file"`
}

// ReportConfig controls CSV output.
type ReportConfig struct {
	Dir       string `mapstructure:"dir"`
	Sort      bool   `mapstructure:"sort"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PostgresConfig enables the Postgres record sink when DSN is set. Table,
// Table_counts and Table_runs need the unique constraints of
// internal/storage/postgres/schema.sql; EnsureSchema creates them at startup.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig enables run-summary notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	APIKey  string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawl.start_year", 2005)
	v.SetDefault("crawl.end_year", 2025)
	v.SetDefault("crawl.workers", 2)
	v.SetDefault("crawl.queue_depth", 0)
	v.SetDefault("crawl.delay", "800ms")
	v.SetDefault("crawl.max_sitemaps", 0)
	v.SetDefault("crawl.max_rps_per_host", 0)
	v.SetDefault("crawl.user_agent", "sitemap-coverage-crawler/0.1 (+research)")
	v.SetDefault("crawl.default_category", "")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("profiles.file", "")
	v.SetDefault("profiles.shared_lists_file", "")
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.sort", true)
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.gcs_prefix", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "coverage_records")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Window().Validate(); err != nil {
		return fmt.Errorf("crawl window: %w", err)
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.QueueDepth < 0 {
		return fmt.Errorf("crawl.queue_depth must be >= 0")
	}
	if c.Crawl.Delay < 0 {
		return fmt.Errorf("crawl.delay must be >= 0")
	}
	if c.Crawl.MaxSitemaps < 0 {
		return fmt.Errorf("crawl.max_sitemaps must be >= 0")
	}
	if c.Crawl.MaxRPSPerHost < 0 {
		return fmt.Errorf("crawl.max_rps_per_host must be >= 0")
	}
	if c.Crawl.DefaultCategory != "" {
		if _, err := profile.ParseDefaultPolicy(c.Crawl.DefaultCategory); err != nil {
			return fmt.Errorf("crawl.default_category: %w", err)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Window returns the configured year window.
func (c Config) Window() dates.Window {
	return dates.Window{Start: c.Crawl.StartYear, End: c.Crawl.EndYear}
}
