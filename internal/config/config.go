// Package config loads and validates beachwatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
	"github.com/JakeFAU/beachwatch-crawler/internal/crawler"
	"github.com/JakeFAU/beachwatch-crawler/internal/extract"
)

// EnvPrefix prefixes every environment override, e.g. BEACHWATCH_SOURCE_BASE_URL.
const EnvPrefix = "BEACHWATCH"

// Fetch modes.
const (
	FetchModeColly    = "colly"
	FetchModeHeadless = "headless"
	// FetchModeAuto probes with colly and promotes script-rendered pages.
	FetchModeAuto = "auto"
)

// Object store providers.
const (
	ProviderS3     = "s3"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Fields    []FieldConfig   `mapstructure:"fields"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Clock     ClockConfig     `mapstructure:"clock"`
	Freshness FreshnessConfig `mapstructure:"freshness"`
	Sinks     SinksConfig     `mapstructure:"sinks"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig locates the site and bounds a run.
type SourceConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	RegionFilter string `mapstructure:"region_filter"`
	BeachFilter  string `mapstructure:"beach_filter"`
	StripPath    string `mapstructure:"strip_path"`
	// Bypass treats BaseURL as the only beach page.
	Bypass bool `mapstructure:"bypass"`
	// TestLimit caps the number of beach pages; zero means all.
	TestLimit int `mapstructure:"test_limit"`
}

// FieldConfig is one extracted column.
type FieldConfig struct {
	Selector string `mapstructure:"selector"`
	Label    string `mapstructure:"label"`
	Multi    bool   `mapstructure:"multi"`
}

// FetchConfig configures page retrieval and the uniform retry policy.
type FetchConfig struct {
	Mode              string        `mapstructure:"mode"`
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WaitSelector      string        `mapstructure:"wait_selector"`
	Settle            time.Duration `mapstructure:"settle"`
	PromoteThreshold  int           `mapstructure:"promote_threshold"`
}

// ClockConfig sets the zone row timestamps are written in.
type ClockConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// FreshnessConfig drives the stale-row warning.
type FreshnessConfig struct {
	Label  string `mapstructure:"label"`
	Marker string `mapstructure:"marker"`
}

// SinksConfig lists every output. Sinks run in the order local, sqlite,
// postgres, object.
type SinksConfig struct {
	Local    LocalSinkConfig    `mapstructure:"local"`
	SQLite   SQLiteSinkConfig   `mapstructure:"sqlite"`
	Postgres PostgresSinkConfig `mapstructure:"postgres"`
	Object   ObjectSinkConfig   `mapstructure:"object"`
}

// LocalSinkConfig writes files under Dir.
type LocalSinkConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Dir      string   `mapstructure:"dir"`
	BaseName string   `mapstructure:"base_name"`
	Formats  []string `mapstructure:"formats"`
}

// SQLiteSinkConfig appends to an embedded database.
type SQLiteSinkConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Path        string        `mapstructure:"path"`
	Table       string        `mapstructure:"table"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// PostgresSinkConfig appends to a Postgres table.
type PostgresSinkConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ObjectSinkConfig uploads the CSV to a fixed bucket/key.
type ObjectSinkConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Provider string   `mapstructure:"provider"`
	Bucket   string   `mapstructure:"bucket"`
	Prefix   string   `mapstructure:"prefix"`
	Key      string   `mapstructure:"key"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config reaches any S3-compatible endpoint.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// PubSubConfig holds run-summary notification settings. An empty Topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig triggers daily runs in daemon mode.
type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
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
	v.SetDefault("source.base_url", beach.DefaultBaseURL)
	v.SetDefault("source.region_filter", crawler.DefaultRegionFilter)
	v.SetDefault("source.beach_filter", crawler.DefaultBeachFilter)
	v.SetDefault("source.strip_path", extract.DefaultStripPath)
	v.SetDefault("source.bypass", false)
	v.SetDefault("source.test_limit", 0)

	v.SetDefault("fields", defaultFields())

	v.SetDefault("fetch.mode", FetchModeColly)
	v.SetDefault("fetch.user_agent", "beachwatch-crawler/0.1")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.retry_attempts", crawler.DefaultRetryAttempts)
	v.SetDefault("fetch.retry_delay", crawler.DefaultRetryDelay)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.burst", 1)

	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", 45*time.Second)
	v.SetDefault("headless.wait_selector", "body")
	v.SetDefault("headless.settle", time.Duration(0))
	v.SetDefault("headless.promote_threshold", 2048)

	v.SetDefault("clock.timezone", "Australia/Sydney")
	v.SetDefault("freshness.label", crawler.DefaultFreshnessLabel)
	v.SetDefault("freshness.marker", crawler.DefaultFreshnessMarker)

	v.SetDefault("sinks.local.enabled", true)
	v.SetDefault("sinks.local.dir", "data")
	v.SetDefault("sinks.local.base_name", "all_beach_daily_data")
	v.SetDefault("sinks.local.formats", []string{"csv", "xlsx", "parquet"})
	v.SetDefault("sinks.sqlite.enabled", true)
	v.SetDefault("sinks.sqlite.path", "data/daily_beach_data_db.sqlite")
	v.SetDefault("sinks.sqlite.table", "beaches")
	v.SetDefault("sinks.sqlite.busy_timeout", 5*time.Second)
	v.SetDefault("sinks.postgres.enabled", false)
	v.SetDefault("sinks.postgres.dsn", "")
	v.SetDefault("sinks.postgres.table", "beaches")
	v.SetDefault("sinks.postgres.max_conns", 2)
	v.SetDefault("sinks.postgres.min_conns", 0)
	v.SetDefault("sinks.postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("sinks.object.enabled", false)
	v.SetDefault("sinks.object.provider", ProviderS3)
	v.SetDefault("sinks.object.bucket", "databooth-beach-swim")
	v.SetDefault("sinks.object.prefix", "")
	v.SetDefault("sinks.object.key", "all_beach_daily_data.csv")
	v.SetDefault("sinks.object.s3.region", "fr-par")
	v.SetDefault("sinks.object.s3.endpoint", "https://s3.fr-par.scw.cloud")
	v.SetDefault("sinks.object.s3.access_key_id", "")
	v.SetDefault("sinks.object.s3.secret_access_key", "")
	v.SetDefault("sinks.object.s3.use_path_style", false)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "40 7 * * *")
	v.SetDefault("schedule.timezone", "Australia/Sydney")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

func defaultFields() []map[string]any {
	spec := beach.DefaultFieldSpec()
	out := make([]map[string]any, len(spec))
	for i, f := range spec {
		out[i] = map[string]any{"selector": f.Selector, "label": f.Label, "multi": f.Multi}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return errors.New("source.base_url is required")
	}
	if c.Source.TestLimit < 0 {
		return errors.New("source.test_limit must be >= 0")
	}
	if err := c.FieldSpec().Validate(); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	switch c.Fetch.Mode {
	case FetchModeColly:
	case FetchModeHeadless, FetchModeAuto:
		if c.Headless.MaxParallel <= 0 {
			return fmt.Errorf("headless.max_parallel must be > 0 when fetch.mode is %s", c.Fetch.Mode)
		}
	default:
		return fmt.Errorf("fetch.mode must be %q, %q or %q, got %q",
			FetchModeColly, FetchModeHeadless, FetchModeAuto, c.Fetch.Mode)
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be > 0")
	}
	if c.Fetch.RetryAttempts < 1 {
		return errors.New("fetch.retry_attempts must be >= 1")
	}
	if c.Fetch.RetryDelay < 0 {
		return errors.New("fetch.retry_delay must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return errors.New("fetch.requests_per_second must be >= 0")
	}
	if _, err := time.LoadLocation(c.Clock.Timezone); err != nil {
		return fmt.Errorf("clock.timezone: %w", err)
	}
	if err := c.Sinks.validate(); err != nil {
		return err
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	return nil
}

func (s SinksConfig) validate() error {
	if s.Local.Enabled {
		if strings.TrimSpace(s.Local.Dir) == "" {
			return errors.New("sinks.local.dir is required")
		}
		if s.Local.BaseName == "" {
			return errors.New("sinks.local.base_name is required")
		}
		for _, f := range s.Local.Formats {
			switch f {
			case "csv", "xlsx", "parquet":
			default:
				return fmt.Errorf("sinks.local.formats: unknown format %q", f)
			}
		}
	}
	if s.SQLite.Enabled && strings.TrimSpace(s.SQLite.Path) == "" {
		return errors.New("sinks.sqlite.path is required")
	}
	if s.Postgres.Enabled && s.Postgres.DSN == "" {
		return errors.New("sinks.postgres.dsn is required")
	}
	if s.Object.Enabled {
		switch s.Object.Provider {
		case ProviderS3, ProviderGCS:
			if s.Object.Bucket == "" {
				return errors.New("sinks.object.bucket is required")
			}
		case ProviderMemory:
		default:
			return fmt.Errorf("sinks.object.provider must be s3, gcs or memory, got %q", s.Object.Provider)
		}
		if s.Object.Key == "" {
			return errors.New("sinks.object.key is required")
		}
	}
	return nil
}

// FieldSpec converts the configured fields.
func (c Config) FieldSpec() beach.FieldSpec {
	spec := make(beach.FieldSpec, len(c.Fields))
	for i, f := range c.Fields {
		spec[i] = beach.Field{Selector: f.Selector, Label: f.Label, Multi: f.Multi}
	}
	return spec
}

// Discovery returns the crawl settings for crawler.Discover.
func (c Config) Discovery() crawler.DiscoveryConfig {
	return crawler.DiscoveryConfig{
		BaseURL:      c.Source.BaseURL,
		RegionFilter: c.Source.RegionFilter,
		BeachFilter:  c.Source.BeachFilter,
		StripPath:    c.Source.StripPath,
		Bypass:       c.Source.Bypass,
	}
}

// Pipeline returns the pipeline settings.
func (c Config) Pipeline() crawler.PipelineConfig {
	return crawler.PipelineConfig{
		Discovery:       c.Discovery(),
		Fields:          c.FieldSpec(),
		Limit:           c.Source.TestLimit,
		FreshnessLabel:  c.Freshness.Label,
		FreshnessMarker: c.Freshness.Marker,
		NotifyTopic:     c.PubSub.Topic,
	}
}
