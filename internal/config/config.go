// Package config loads and validates serp-forge configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SERPFORGE_SERPER_API_KEY.
const EnvPrefix = "SERPFORGE"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Serper            SerperConfig            `mapstructure:"serper"`
	Retry             RetryConfig             `mapstructure:"retry"`
	Scraping          ScrapingConfig          `mapstructure:"scraping"`
	Batch             BatchConfig             `mapstructure:"batch"`
	AntiDetection     AntiDetectionConfig     `mapstructure:"anti_detection"`
	Proxy             ProxyConfig             `mapstructure:"proxy"`
	ContentExtraction ContentExtractionConfig `mapstructure:"content_extraction"`
	Output            OutputConfig            `mapstructure:"output"`
	Cache             CacheConfig             `mapstructure:"cache"`
	Storage           StorageConfig           `mapstructure:"storage"`
	Notify            NotifyConfig            `mapstructure:"notify"`
	Server            ServerConfig            `mapstructure:"server"`
	Logging           LoggingConfig           `mapstructure:"logging"`
	Telemetry         TelemetryConfig         `mapstructure:"telemetry"`
}

// SerperConfig points at the upstream search API.
type SerperConfig struct {
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
}

// RetryConfig governs upstream retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      bool          `mapstructure:"jitter"`
}

// ScrapingConfig bounds per-query page fetching.
type ScrapingConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxResults     int           `mapstructure:"max_results"`
	Sequential     bool          `mapstructure:"sequential"`
}

// BatchConfig bounds how many queries run at once.
type BatchConfig struct {
	MaxConcurrentQueries int `mapstructure:"max_concurrent_queries"`
}

// AntiDetectionConfig shapes outbound page requests.
type AntiDetectionConfig struct {
	RotateHeaders       bool          `mapstructure:"rotate_headers"`
	RotateUserAgents    bool          `mapstructure:"rotate_user_agents"`
	UserAgentsFile      string        `mapstructure:"user_agents_file"`
	DelayMin            time.Duration `mapstructure:"delay_min"`
	DelayMax            time.Duration `mapstructure:"delay_max"`
	RespectRobots       bool          `mapstructure:"respect_robots"`
	HeadlessFallback    bool          `mapstructure:"headless_fallback"`
	HeadlessMaxParallel int           `mapstructure:"headless_max_parallel"`
	HeadlessNavTimeout  time.Duration `mapstructure:"headless_nav_timeout"`
	SkipDomains         []string      `mapstructure:"skip_domains"`
	BlockAfterForbidden int           `mapstructure:"block_after_forbidden"`
}

// ProxyConfig lists proxy pools.
type ProxyConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Rotation    string   `mapstructure:"rotation"`
	Residential []string `mapstructure:"residential"`
	Datacenter  []string `mapstructure:"datacenter"`
}

// ContentExtractionConfig toggles analysis features and length bounds.
type ContentExtractionConfig struct {
	SentimentAnalysis bool `mapstructure:"sentiment_analysis"`
	KeywordExtraction bool `mapstructure:"keyword_extraction"`
	LanguageDetection bool `mapstructure:"language_detection"`
	AutoSummarization bool `mapstructure:"auto_summarization"`
	MinContentLength  int  `mapstructure:"min_content_length"`
	MaxContentLength  int  `mapstructure:"max_content_length"`
}

// OutputConfig controls what ends up in results.
type OutputConfig struct {
	IncludeRawHTML bool `mapstructure:"include_raw_html"`
}

// CacheConfig enables the Redis search response cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StorageConfig selects where finished results are persisted.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	LocalDir      string `mapstructure:"local_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	Prefix        string `mapstructure:"prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// NotifyConfig publishes completion messages to Pub/Sub when both fields are set.
type NotifyConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool          `mapstructure:"development"`
	Level       string        `mapstructure:"level"`
	File        LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotating log file; an empty Path disables it.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Storage backends.
const (
	BackendNone     = "none"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Proxy rotation modes.
const (
	RotationRandom     = "random"
	RotationRoundRobin = "round_robin"
)

// Load builds a Config from .env, an optional file, and the environment.
// With an empty path, serpforge.{yaml,json,toml} is looked up in the working
// directory and $HOME/.serpforge; a missing file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

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
	} else {
		v.SetConfigName("serpforge")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.serpforge")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Serper.APIKey == "" {
		cfg.Serper.APIKey = os.Getenv("SERPER_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serper.api_key", "")
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.timeout", 30*time.Second)
	v.SetDefault("serper.max_requests_per_minute", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 4*time.Second)
	v.SetDefault("retry.max_delay", 10*time.Second)
	v.SetDefault("retry.jitter", false)
	v.SetDefault("scraping.max_concurrent", 5)
	v.SetDefault("scraping.request_timeout", 15*time.Second)
	v.SetDefault("scraping.max_results", 10)
	v.SetDefault("scraping.sequential", false)
	v.SetDefault("batch.max_concurrent_queries", 5)
	v.SetDefault("anti_detection.rotate_headers", true)
	v.SetDefault("anti_detection.rotate_user_agents", true)
	v.SetDefault("anti_detection.user_agents_file", "")
	v.SetDefault("anti_detection.delay_min", time.Second)
	v.SetDefault("anti_detection.delay_max", 4*time.Second)
	v.SetDefault("anti_detection.respect_robots", false)
	v.SetDefault("anti_detection.headless_fallback", false)
	v.SetDefault("anti_detection.headless_max_parallel", 2)
	v.SetDefault("anti_detection.headless_nav_timeout", 25*time.Second)
	v.SetDefault("anti_detection.skip_domains", []string{})
	v.SetDefault("anti_detection.block_after_forbidden", 3)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.rotation", RotationRandom)
	v.SetDefault("proxy.residential", []string{})
	v.SetDefault("proxy.datacenter", []string{})
	v.SetDefault("content_extraction.sentiment_analysis", true)
	v.SetDefault("content_extraction.keyword_extraction", true)
	v.SetDefault("content_extraction.language_detection", true)
	v.SetDefault("content_extraction.auto_summarization", true)
	v.SetDefault("content_extraction.min_content_length", 100)
	v.SetDefault("content_extraction.max_content_length", 50000)
	v.SetDefault("output.include_raw_html", false)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.local_dir", "results")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "serpforge")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_table", "search_results")
	v.SetDefault("notify.pubsub_project", "")
	v.SetDefault("notify.pubsub_topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.compress", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "serpforge")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Serper.APIKey) == "" {
		return fmt.Errorf("serper.api_key is required (set SERPER_API_KEY or %s_SERPER_API_KEY)", EnvPrefix)
	}
	if c.Serper.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("serper.max_requests_per_minute must be > 0")
	}
	if c.Serper.Timeout <= 0 {
		return fmt.Errorf("serper.timeout must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay must be >= retry.base_delay")
	}
	if c.Scraping.MaxConcurrent <= 0 {
		return fmt.Errorf("scraping.max_concurrent must be > 0")
	}
	if c.Scraping.RequestTimeout <= 0 {
		return fmt.Errorf("scraping.request_timeout must be > 0")
	}
	if c.Scraping.MaxResults <= 0 || c.Scraping.MaxResults > 100 {
		return fmt.Errorf("scraping.max_results must be between 1 and 100")
	}
	if c.Batch.MaxConcurrentQueries <= 0 {
		return fmt.Errorf("batch.max_concurrent_queries must be > 0")
	}
	if c.AntiDetection.DelayMin < 0 || c.AntiDetection.DelayMax < c.AntiDetection.DelayMin {
		return fmt.Errorf("anti_detection.delay_min must be >= 0 and <= delay_max")
	}
	if c.AntiDetection.HeadlessFallback && c.AntiDetection.HeadlessMaxParallel <= 0 {
		return fmt.Errorf("anti_detection.headless_max_parallel must be > 0 when headless fallback is enabled")
	}
	switch c.Proxy.Rotation {
	case RotationRandom, RotationRoundRobin:
	default:
		return fmt.Errorf("proxy.rotation must be %q or %q", RotationRandom, RotationRoundRobin)
	}
	if c.ContentExtraction.MinContentLength < 0 ||
		c.ContentExtraction.MaxContentLength < c.ContentExtraction.MinContentLength {
		return fmt.Errorf("content_extraction.min_content_length must be >= 0 and <= max_content_length")
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url must be set when the cache is enabled")
	}
	switch c.Storage.Backend {
	case BackendNone, "":
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if (c.Notify.PubSubProject == "") != (c.Notify.PubSubTopic == "") {
		return fmt.Errorf("notify.pubsub_project and notify.pubsub_topic must be set together")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Masked returns a copy safe to print, with secrets obscured.
func (c Config) Masked() Config {
	c.Serper.APIKey = maskSecret(c.Serper.APIKey)
	c.Server.APIKey = maskSecret(c.Server.APIKey)
	if c.Storage.PostgresDSN != "" {
		c.Storage.PostgresDSN = "***"
	}
	return c
}

// Redacted returns a copy with secrets cleared, suitable for writing to a
// config file; the secrets are then supplied through the environment.
func (c Config) Redacted() Config {
	c.Serper.APIKey = ""
	c.Server.APIKey = ""
	c.Storage.PostgresDSN = ""
	return c
}

// Settings renders c as a nested map keyed by configuration names, for display.
func (c Config) Settings() (map[string]any, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(c, &out); err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
