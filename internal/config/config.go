// Package config loads the engine's typed configuration from a YAML file
// with environment-variable overrides, replacing the free-form config
// dictionaries common to script-era bots with a single strongly-typed
// struct validated at startup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the leaderboard engine needs at startup.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	KVStore      KVStoreConfig
	SQLStore     SQLStoreConfig
	FinalsAPI    FinalsAPIConfig
	Season       SeasonConfig
	Render       RenderConfig
	ImageStore   ImageStoreConfig
	Plugins      PluginsConfig
	Announce     AnnounceConfig
	Platforms    PlatformsConfig
	Concurrency  ConcurrencyConfig
}

type ServerConfig struct {
	Env             string
	DiagnosticsAddr string
}

type LogConfig struct {
	Level string
}

// KVStoreConfig configures the hot-tier key/value store (Redis-compatible).
type KVStoreConfig struct {
	Addr     string
	Password string
	DB       int
}

// SQLStoreConfig configures the embedded historical store. Path is used as
// a directory: each historical season gets its own DuckDB file under it,
// plus a backups/ subdirectory.
type SQLStoreConfig struct {
	Path string
}

// FinalsAPIConfig configures the conditional-cache HTTP client to the
// upstream leaderboard API, including its primary/backup failover pair.
type FinalsAPIConfig struct {
	PrimaryBaseURL      string
	BackupBaseURL       string
	RequestsPerSecond   float64
	Burst               int
	MaxRetries          int
	RetryInitialBackoff time.Duration
	ContentTTL          time.Duration
	LastModifiedTTL      time.Duration
}

// SeasonConfig names the current season, the refresh cadence, and every
// historical season id the season manager should load at startup.
type SeasonConfig struct {
	CurrentSeasonID     string
	RefreshInterval     time.Duration
	HistoricalSeasonIDs []string
}

// RenderConfig sizes the headless-browser render pool.
type RenderConfig struct {
	PoolSize       int
	RenderTimeout  time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// ImageStoreConfig configures on-disk rendered-image retention.
type ImageStoreConfig struct {
	Dir             string
	RetentionPeriod time.Duration
	SweepInterval   time.Duration
}

// PluginsConfig configures the plugin dispatcher.
type PluginsConfig struct {
	Enabled []string
}

// AnnounceConfig configures the per-guild daily announcement scheduler.
type AnnounceConfig struct {
	Timezone      string
	DailyCap      int
	Announcements []AnnouncementConfig
}

// AnnouncementConfig is one configured announcement window. StartTime and
// EndTime are "HH:MM" clock times interpreted in Timezone, recurring daily.
type AnnouncementConfig struct {
	ID        string
	Message   string
	StartTime string
	EndTime   string
}

// PlatformsConfig carries per-platform bot credentials.
type PlatformsConfig struct {
	QQToken    string
	KookToken  string
	HeyBoxToken string
}

// ConcurrencyConfig bounds handler and worker concurrency.
type ConcurrencyConfig struct {
	MaxConcurrentHandlers int
	MaxWorkers            int
	HandlerTimeout        time.Duration
}

// Load reads configuration from a YAML file (if present) via viper, then
// applies environment-variable overrides under the LB_ prefix, then
// validates the result. path may be empty, in which case only the
// environment and defaults apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absent .env is not an error

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Env:             v.GetString("server.env"),
			DiagnosticsAddr: v.GetString("server.diagnostics_addr"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		KVStore: KVStoreConfig{
			Addr:     v.GetString("kvstore.addr"),
			Password: v.GetString("kvstore.password"),
			DB:       v.GetInt("kvstore.db"),
		},
		SQLStore: SQLStoreConfig{
			Path: v.GetString("sqlstore.path"),
		},
		FinalsAPI: FinalsAPIConfig{
			PrimaryBaseURL:      v.GetString("finalsapi.primary_base_url"),
			BackupBaseURL:       v.GetString("finalsapi.backup_base_url"),
			RequestsPerSecond:   v.GetFloat64("finalsapi.requests_per_second"),
			Burst:               v.GetInt("finalsapi.burst"),
			MaxRetries:          v.GetInt("finalsapi.max_retries"),
			RetryInitialBackoff: v.GetDuration("finalsapi.retry_initial_backoff"),
			ContentTTL:          v.GetDuration("finalsapi.content_ttl"),
			LastModifiedTTL:     v.GetDuration("finalsapi.last_modified_ttl"),
		},
		Season: SeasonConfig{
			CurrentSeasonID:     v.GetString("season.current_season_id"),
			RefreshInterval:     v.GetDuration("season.refresh_interval"),
			HistoricalSeasonIDs: v.GetStringSlice("season.historical_season_ids"),
		},
		Render: RenderConfig{
			PoolSize:       v.GetInt("render.pool_size"),
			RenderTimeout:  v.GetDuration("render.render_timeout"),
			ViewportWidth:  v.GetInt("render.viewport_width"),
			ViewportHeight: v.GetInt("render.viewport_height"),
		},
		ImageStore: ImageStoreConfig{
			Dir:             v.GetString("imagestore.dir"),
			RetentionPeriod: v.GetDuration("imagestore.retention_period"),
			SweepInterval:   v.GetDuration("imagestore.sweep_interval"),
		},
		Plugins: PluginsConfig{
			Enabled: v.GetStringSlice("plugins.enabled"),
		},
		Announce: AnnounceConfig{
			Timezone: v.GetString("announce.timezone"),
			DailyCap: v.GetInt("announce.daily_cap"),
		},
		Platforms: PlatformsConfig{
			QQToken:     v.GetString("platforms.qq_token"),
			KookToken:   v.GetString("platforms.kook_token"),
			HeyBoxToken: v.GetString("platforms.heybox_token"),
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrentHandlers: v.GetInt("concurrency.max_concurrent_handlers"),
			MaxWorkers:            v.GetInt("concurrency.max_workers"),
			HandlerTimeout:        v.GetDuration("concurrency.handler_timeout"),
		},
	}

	var announcements []AnnouncementConfig
	if err := v.UnmarshalKey("announce.announcements", &announcements); err != nil {
		return nil, fmt.Errorf("parsing announce.announcements: %w", err)
	}
	cfg.Announce.Announcements = announcements

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.env", "development")
	v.SetDefault("server.diagnostics_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("kvstore.addr", "localhost:6379")
	v.SetDefault("kvstore.db", 0)
	v.SetDefault("sqlstore.path", "data/leaderboard.db")
	v.SetDefault("finalsapi.requests_per_second", 5.0)
	v.SetDefault("finalsapi.burst", 10)
	v.SetDefault("finalsapi.max_retries", 4)
	v.SetDefault("finalsapi.retry_initial_backoff", 500*time.Millisecond)
	v.SetDefault("finalsapi.content_ttl", 2*time.Minute)
	v.SetDefault("finalsapi.last_modified_ttl", 24*time.Hour)
	v.SetDefault("season.refresh_interval", 5*time.Minute)
	v.SetDefault("season.historical_season_ids", []string{})
	v.SetDefault("render.pool_size", 4)
	v.SetDefault("render.render_timeout", 15*time.Second)
	v.SetDefault("render.viewport_width", 1280)
	v.SetDefault("render.viewport_height", 800)
	v.SetDefault("imagestore.dir", "data/images")
	v.SetDefault("imagestore.retention_period", 24*time.Hour)
	v.SetDefault("imagestore.sweep_interval", 10*time.Minute)
	v.SetDefault("announce.timezone", "Asia/Shanghai")
	v.SetDefault("announce.daily_cap", 10)
	v.SetDefault("concurrency.max_concurrent_handlers", 64)
	v.SetDefault("concurrency.max_workers", 8)
	v.SetDefault("concurrency.handler_timeout", 30*time.Second)
}

// Validate checks that required configuration is present and internally
// consistent.
func (c *Config) Validate() error {
	if c.FinalsAPI.PrimaryBaseURL == "" {
		return fmt.Errorf("finalsapi.primary_base_url is required")
	}
	if c.Season.CurrentSeasonID == "" {
		return fmt.Errorf("season.current_season_id is required")
	}
	if c.Render.PoolSize <= 0 {
		return fmt.Errorf("render.pool_size must be positive")
	}
	if _, err := time.LoadLocation(c.Announce.Timezone); err != nil {
		return fmt.Errorf("announce.timezone %q is invalid: %w", c.Announce.Timezone, err)
	}
	return nil
}
