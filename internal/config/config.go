package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/pricing"
	"github.com/rewired-gh/fleaprice/internal/storage"
)

// Config represents the complete application configuration
type Config struct {
	Market   MarketConfig   `mapstructure:"market"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	History  HistoryConfig  `mapstructure:"history"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MarketConfig holds market gateway configuration
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SessionToken   string        `mapstructure:"session_token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// CatalogConfig points at the item ID list
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// PricingConfig holds sampling and weighting parameters
type PricingConfig struct {
	Baseline           int64              `mapstructure:"baseline"`
	RelaxedTier        int                `mapstructure:"relaxed_tier"`
	StackCap           int64              `mapstructure:"stack_cap"`
	RelaxedStackCap    int64              `mapstructure:"relaxed_stack_cap"`
	CollapseDuplicates bool               `mapstructure:"collapse_duplicates"` // legacy: duplicate stack prices count once
	Corrections        map[string]float64 `mapstructure:"corrections"`
}

// HistoryConfig holds ring and averaging configuration
type HistoryConfig struct {
	Periods int    `mapstructure:"periods"`
	Mode    string `mapstructure:"mode"`
}

// StorageConfig holds snapshot persistence configuration
type StorageConfig struct {
	Backend      string `mapstructure:"backend"` // file, sqlite or postgres
	Dir          string `mapstructure:"dir"`
	AveragesPath string `mapstructure:"averages_path"`
	DSN          string `mapstructure:"dsn"`
}

// PipelineConfig holds run scheduling and failure policy
type PipelineConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Workers         int           `mapstructure:"workers"`
	SkipFailedItems bool          `mapstructure:"skip_failed_items"`
	FetchBasePrices bool          `mapstructure:"fetch_base_prices"`
}

// PublishConfig holds the result publishers
type PublishConfig struct {
	XLSX  XLSXConfig  `mapstructure:"xlsx"`
	Redis RedisConfig `mapstructure:"redis"`
}

// XLSXConfig holds the workbook publisher configuration
type XLSXConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RedisConfig holds the Redis publisher configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	TopN           int           `mapstructure:"top_n"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// APIConfig holds the read-only HTTP API configuration
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// FLEAPRICE_MARKET_SESSION_TOKEN overrides market.session_token
	v.SetEnvPrefix("FLEAPRICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Market defaults
	v.SetDefault("market.base_url", "http://localhost:8080")
	v.SetDefault("market.session_token", "")
	v.SetDefault("market.timeout", "30s")
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.retry_delay_base", "1s")

	v.SetDefault("catalog.path", "./item_ids.json")

	// Pricing defaults
	v.SetDefault("pricing.baseline", pricing.DefaultBaseline)
	v.SetDefault("pricing.relaxed_tier", pricing.RelaxedTier)
	v.SetDefault("pricing.stack_cap", pricing.DefaultStackCap)
	v.SetDefault("pricing.relaxed_stack_cap", pricing.DefaultRelaxedStackCap)
	v.SetDefault("pricing.collapse_duplicates", false)
	v.SetDefault("pricing.corrections", map[string]float64{
		pricing.UndercountedItemID: pricing.UndercountCorrection,
	})

	v.SetDefault("history.periods", history.DefaultPeriods)
	v.SetDefault("history.mode", string(history.ModePresentOnly))

	// Storage defaults
	v.SetDefault("storage.backend", storage.BackendFile)
	v.SetDefault("storage.dir", "./price_history")
	v.SetDefault("storage.averages_path", "./averages.json")
	v.SetDefault("storage.dsn", "")

	// Pipeline defaults
	v.SetDefault("pipeline.interval", "10m")
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.skip_failed_items", true)
	v.SetDefault("pipeline.fetch_base_prices", true)

	// Publisher defaults
	v.SetDefault("publish.xlsx.enabled", false)
	v.SetDefault("publish.xlsx.path", "./prices.xlsx")
	v.SetDefault("publish.redis.enabled", false)
	v.SetDefault("publish.redis.addr", "localhost:6379")
	v.SetDefault("publish.redis.password", "")
	v.SetDefault("publish.redis.db", 0)
	v.SetDefault("publish.redis.prefix", "fleaprice:")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.top_n", 10)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", ":8081")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Market config
	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if c.Market.SessionToken == "" {
		return fmt.Errorf("market.session_token is required")
	}
	if c.Market.Timeout <= 0 {
		return fmt.Errorf("market.timeout must be positive")
	}
	if c.Market.MaxRetries < 0 {
		return fmt.Errorf("market.max_retries must not be negative")
	}
	if c.Market.RetryDelayBase < 0 {
		return fmt.Errorf("market.retry_delay_base must not be negative")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	// Validate Pricing config
	if c.Pricing.Baseline < 1 {
		return fmt.Errorf("pricing.baseline must be at least 1")
	}
	if c.Pricing.StackCap < 1 || c.Pricing.RelaxedStackCap < 1 {
		return fmt.Errorf("pricing.stack_cap and pricing.relaxed_stack_cap must be at least 1")
	}
	for id, factor := range c.Pricing.Corrections {
		if factor <= 0 {
			return fmt.Errorf("pricing.corrections[%s] must be positive", id)
		}
	}

	// Validate History config
	if c.History.Periods < 1 {
		return fmt.Errorf("history.periods must be at least 1")
	}
	if _, err := history.ParseMode(c.History.Mode); err != nil {
		return fmt.Errorf("history.mode: %w", err)
	}

	// Validate Storage config
	switch c.Storage.Backend {
	case storage.BackendFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case storage.BackendSQLite:
	case storage.BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: file, sqlite, postgres")
	}

	// Validate Pipeline config
	if c.Pipeline.Interval < 1*time.Minute {
		return fmt.Errorf("pipeline.interval must be at least 1 minute")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}

	// Validate Publish config
	if c.Publish.XLSX.Enabled && c.Publish.XLSX.Path == "" {
		return fmt.Errorf("publish.xlsx.path is required when the xlsx publisher is enabled")
	}
	if c.Publish.Redis.Enabled && c.Publish.Redis.Addr == "" {
		return fmt.Errorf("publish.redis.addr is required when the redis publisher is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.TopN < 0 {
		return fmt.Errorf("telegram.top_n must not be negative")
	}

	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr is required when the api is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// PricingOptions converts the pricing section into calculator settings.
func (c *Config) PricingOptions() pricing.Config {
	return pricing.Config{
		Baseline:           c.Pricing.Baseline,
		RelaxedTier:        c.Pricing.RelaxedTier,
		StackCap:           c.Pricing.StackCap,
		RelaxedStackCap:    c.Pricing.RelaxedStackCap,
		Corrections:        c.Pricing.Corrections,
		CollapseDuplicates: c.Pricing.CollapseDuplicates,
	}
}

// StorageOptions converts the storage and history sections into backend options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:      c.Storage.Backend,
		Dir:          c.Storage.Dir,
		AveragesPath: c.Storage.AveragesPath,
		DSN:          c.Storage.DSN,
		Periods:      c.History.Periods,
	}
}
