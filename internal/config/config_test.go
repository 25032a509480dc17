package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/fleaprice/internal/history"
	"github.com/rewired-gh/fleaprice/internal/pricing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
market:
  base_url: "https://gateway.example.com"
  session_token: "abc"
  timeout: 10s
  max_retries: 5

catalog:
  path: "./data/item_ids.json"

pricing:
  baseline: 25
  collapse_duplicates: true

history:
  periods: 48
  mode: all_slots

storage:
  backend: sqlite
  dsn: "./data/history.db"

pipeline:
  interval: 15m
  workers: 4
  skip_failed_items: false

publish:
  xlsx:
    enabled: true
    path: "./out/prices.xlsx"
  redis:
    enabled: true
    addr: "redis:6379"

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Market.BaseURL != "https://gateway.example.com" {
		t.Errorf("Unexpected base url: %s", cfg.Market.BaseURL)
	}
	if cfg.Market.Timeout != 10*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.Market.Timeout)
	}
	if cfg.Market.MaxRetries != 5 {
		t.Errorf("Unexpected max retries: %d", cfg.Market.MaxRetries)
	}
	if cfg.Pricing.Baseline != 25 {
		t.Errorf("Unexpected baseline: %d", cfg.Pricing.Baseline)
	}
	if !cfg.Pricing.CollapseDuplicates {
		t.Error("Expected collapse_duplicates to be true")
	}
	if cfg.History.Periods != 48 || cfg.History.Mode != "all_slots" {
		t.Errorf("Unexpected history config: %+v", cfg.History)
	}
	if cfg.Pipeline.Interval != 15*time.Minute || cfg.Pipeline.Workers != 4 {
		t.Errorf("Unexpected pipeline config: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.SkipFailedItems {
		t.Error("Expected skip_failed_items to be false")
	}
	if !cfg.Publish.XLSX.Enabled || cfg.Publish.Redis.Addr != "redis:6379" {
		t.Errorf("Unexpected publish config: %+v", cfg.Publish)
	}
	// untouched keys keep their defaults
	if cfg.Publish.Redis.Prefix != "fleaprice:" {
		t.Errorf("Unexpected redis prefix: %q", cfg.Publish.Redis.Prefix)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	opts := cfg.StorageOptions()
	if opts.Backend != "sqlite" || opts.Periods != 48 {
		t.Errorf("Unexpected storage options: %+v", opts)
	}
	pc := cfg.PricingOptions()
	if pc.Baseline != 25 || !pc.CollapseDuplicates {
		t.Errorf("Unexpected pricing options: %+v", pc)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
market:
  session_token: "abc"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Pricing.Baseline != pricing.DefaultBaseline {
		t.Errorf("baseline = %d, want %d", cfg.Pricing.Baseline, pricing.DefaultBaseline)
	}
	if cfg.Pricing.StackCap != 100 || cfg.Pricing.RelaxedStackCap != 300 {
		t.Errorf("stack caps = %d/%d, want 100/300", cfg.Pricing.StackCap, cfg.Pricing.RelaxedStackCap)
	}
	if got := cfg.Pricing.Corrections[pricing.UndercountedItemID]; got != pricing.UndercountCorrection {
		t.Errorf("correction = %v, want %v", got, pricing.UndercountCorrection)
	}
	if cfg.History.Periods != history.DefaultPeriods {
		t.Errorf("periods = %d, want %d", cfg.History.Periods, history.DefaultPeriods)
	}
	if cfg.History.Mode != string(history.ModePresentOnly) {
		t.Errorf("mode = %q, want present_only", cfg.History.Mode)
	}
	if cfg.Storage.Backend != "file" || cfg.Storage.Dir != "./price_history" {
		t.Errorf("Unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Pipeline.Interval != 10*time.Minute || cfg.Pipeline.Workers != 1 {
		t.Errorf("Unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if !cfg.Pipeline.SkipFailedItems || !cfg.Pipeline.FetchBasePrices {
		t.Errorf("Unexpected pipeline policy defaults: %+v", cfg.Pipeline)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
market:
  session_token: "from-file"
`)
	t.Setenv("FLEAPRICE_MARKET_SESSION_TOKEN", "from-env")
	t.Setenv("FLEAPRICE_PIPELINE_WORKERS", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Market.SessionToken != "from-env" {
		t.Errorf("session token = %q, want from-env", cfg.Market.SessionToken)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Pipeline.Workers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func validConfig() *Config {
	return &Config{
		Market: MarketConfig{
			BaseURL:        "https://gateway.example.com",
			SessionToken:   "abc",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RetryDelayBase: time.Second,
		},
		Catalog: CatalogConfig{Path: "./item_ids.json"},
		Pricing: PricingConfig{
			Baseline:        20,
			RelaxedTier:     4,
			StackCap:        100,
			RelaxedStackCap: 300,
		},
		History: HistoryConfig{Periods: 144, Mode: "present_only"},
		Storage: StorageConfig{Backend: "file", Dir: "./price_history"},
		Pipeline: PipelineConfig{
			Interval:        10 * time.Minute,
			Workers:         1,
			SkipFailedItems: true,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing session token", func(c *Config) { c.Market.SessionToken = "" }, true},
		{"missing base url", func(c *Config) { c.Market.BaseURL = "" }, true},
		{"zero timeout", func(c *Config) { c.Market.Timeout = 0 }, true},
		{"negative retries", func(c *Config) { c.Market.MaxRetries = -1 }, true},
		{"missing catalog", func(c *Config) { c.Catalog.Path = "" }, true},
		{"zero baseline", func(c *Config) { c.Pricing.Baseline = 0 }, true},
		{"zero stack cap", func(c *Config) { c.Pricing.StackCap = 0 }, true},
		{"non-positive correction", func(c *Config) { c.Pricing.Corrections = map[string]float64{"x": 0} }, true},
		{"zero periods", func(c *Config) { c.History.Periods = 0 }, true},
		{"unknown mode", func(c *Config) { c.History.Mode = "median" }, true},
		{"empty mode is present_only", func(c *Config) { c.History.Mode = "" }, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, true},
		{"sqlite without dsn", func(c *Config) { c.Storage.Backend = "sqlite" }, false},
		{"short interval", func(c *Config) { c.Pipeline.Interval = 30 * time.Second }, true},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, true},
		{"xlsx without path", func(c *Config) { c.Publish.XLSX = XLSXConfig{Enabled: true} }, true},
		{"redis without addr", func(c *Config) { c.Publish.Redis = RedisConfig{Enabled: true} }, true},
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram = TelegramConfig{Enabled: true, ChatID: "1"}
		}, true},
		{"missing telegram chat when enabled", func(c *Config) {
			c.Telegram = TelegramConfig{Enabled: true, BotToken: "t"}
		}, true},
		{"api without addr", func(c *Config) { c.API = APIConfig{Enabled: true} }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
