package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	AccountsFile   string `mapstructure:"accounts_file"`
	ArchiversFile  string `mapstructure:"archivers_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	StorageType     string `mapstructure:"storage_type"`
	WatermarkPrefix string `mapstructure:"watermark_prefix"`
	BBoltPath       string `mapstructure:"bbolt_path"`
	LockDir         string `mapstructure:"lock_dir"`

	PostURLHost     string `mapstructure:"post_url_host"`
	TimelineBaseURL string `mapstructure:"timeline_base_url"`
	StreamURL       string `mapstructure:"stream_url"`
	APIBearerToken  string `mapstructure:"api_bearer_token"`

	BackfillPageSize    int   `mapstructure:"backfill_page_size"`
	BackfillMaxPages    int   `mapstructure:"backfill_max_pages"`
	BackfillDelayMs     int64 `mapstructure:"backfill_delay_ms"`
	BackfillConcurrency int   `mapstructure:"backfill_concurrency"`
	SkipBackfill        bool  `mapstructure:"skip_backfill"`

	ArchiveTimeoutSeconds     int64 `mapstructure:"archive_timeout_seconds"`
	ArchiveRetries            int   `mapstructure:"archive_retries"`
	ReconnectDelaySeconds     int64 `mapstructure:"reconnect_delay_seconds"`
	StreamStallTimeoutSeconds int64 `mapstructure:"stream_stall_timeout_seconds"`
	HTTPTimeoutSeconds        int64 `mapstructure:"http_timeout_seconds"`

	BackfillDelay      time.Duration `mapstructure:"-"`
	ArchiveTimeout     time.Duration `mapstructure:"-"`
	ReconnectDelay     time.Duration `mapstructure:"-"`
	StreamStallTimeout time.Duration `mapstructure:"-"`
	HTTPTimeout        time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "post-archiver")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("accounts_file", "./configs/accounts.yaml")
	v.SetDefault("archivers_file", "./configs/archivers.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("storage_type", "file")
	v.SetDefault("watermark_prefix", "./data/last_post")
	v.SetDefault("bbolt_path", "./data/watermarks.db")
	v.SetDefault("lock_dir", ".")
	v.SetDefault("post_url_host", "twitter.com")
	v.SetDefault("timeline_base_url", "https://api.twitter.com/1.1")
	v.SetDefault("stream_url", "https://stream.twitter.com/1.1/statuses/filter.json")
	v.SetDefault("api_bearer_token", "")
	v.SetDefault("backfill_page_size", 200) // largest page the timeline endpoint serves
	v.SetDefault("backfill_max_pages", 0)
	v.SetDefault("backfill_delay_ms", 1000)
	v.SetDefault("backfill_concurrency", 1)
	v.SetDefault("skip_backfill", false)
	v.SetDefault("archive_timeout_seconds", 60)
	v.SetDefault("archive_retries", 2)
	v.SetDefault("reconnect_delay_seconds", 15)
	v.SetDefault("stream_stall_timeout_seconds", 90)
	v.SetDefault("http_timeout_seconds", 15)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize validates raw values and derives the duration fields.
func (c *Config) normalize() error {
	c.StorageType = strings.ToLower(strings.TrimSpace(c.StorageType))
	c.PostURLHost = strings.Trim(strings.TrimSpace(c.PostURLHost), "/")
	if c.PostURLHost == "" {
		return fmt.Errorf("post_url_host must not be empty")
	}

	if c.BackfillPageSize <= 0 {
		return fmt.Errorf("invalid backfill_page_size (must be positive)")
	}
	if c.BackfillMaxPages < 0 {
		return fmt.Errorf("invalid backfill_max_pages (must be zero or positive)")
	}
	if c.BackfillDelayMs < 0 {
		return fmt.Errorf("invalid backfill_delay_ms (must not be negative)")
	}
	if c.BackfillConcurrency <= 0 {
		c.BackfillConcurrency = 1
	}
	if c.ArchiveRetries < 0 {
		return fmt.Errorf("invalid archive_retries (must not be negative)")
	}

	if c.ArchiveTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid archive_timeout_seconds (must be positive seconds)")
	}
	if c.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("invalid reconnect_delay_seconds (must be positive seconds)")
	}
	if c.StreamStallTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid stream_stall_timeout_seconds (must be positive seconds)")
	}
	if c.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}

	c.BackfillDelay = time.Duration(c.BackfillDelayMs) * time.Millisecond
	c.ArchiveTimeout = time.Duration(c.ArchiveTimeoutSeconds) * time.Second
	c.ReconnectDelay = time.Duration(c.ReconnectDelaySeconds) * time.Second
	c.StreamStallTimeout = time.Duration(c.StreamStallTimeoutSeconds) * time.Second
	c.HTTPTimeout = time.Duration(c.HTTPTimeoutSeconds) * time.Second
	return nil
}
