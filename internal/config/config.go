// Package config provides the YAML-with-env-overrides configuration for the
// inventory pipeline.
package config

import (
	"time"

	"github.com/jonesrussell/ml-inventory/internal/card"
	"github.com/jonesrussell/ml-inventory/internal/crawl"
	"github.com/jonesrussell/ml-inventory/internal/fetcher"
	"github.com/jonesrussell/ml-inventory/internal/logger"
	"github.com/jonesrussell/ml-inventory/internal/transform"
)

// Default configuration values.
const (
	defaultHTTPTimeout  = 25 * time.Second
	defaultMinDelay     = 1200 * time.Millisecond
	defaultJitter       = time.Second
	defaultMaxPages     = 20
	defaultItemsPath    = "items.ndjson"
	defaultBackendURL   = "https://smartloansbackend.azurewebsites.net"
	defaultLoggingLevel = "info"
	defaultLoggingEnc   = "json"
	defaultAcceptLang   = "es-MX,es;q=0.9,en;q=0.8"
)

// Config holds the full pipeline configuration.
type Config struct {
	Fetcher fetcher.Config   `yaml:"fetcher"`
	Crawl   crawl.Config     `yaml:"crawl"`
	Export  ExportConfig     `yaml:"export"`
	FX      transform.FXRate `yaml:"fx"`
	Policy  transform.Policy `yaml:"transform"`
	Logging logger.Config    `yaml:"logging"`
	// ItemsPath is the NDJSON hand-off file between crawl and export.
	ItemsPath string `yaml:"items_path" env:"ITEMS_PATH"`
}

// ExportConfig holds backend store settings.
type ExportConfig struct {
	BaseURL   string `yaml:"base_url" env:"BACKEND_BASE_URL"`
	WorkerKey string `yaml:"worker_key" env:"BACKEND_WORKER_KEY"`
}

// Load reads the config file, applies defaults, then env overrides.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}

	setDefaults(cfg)
	// Env wins over both file and defaults.
	applyEnvOverrides(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	setFetcherDefaults(&cfg.Fetcher)
	if cfg.Crawl.MaxPages == 0 {
		cfg.Crawl.MaxPages = defaultMaxPages
	}
	if cfg.Export.BaseURL == "" {
		cfg.Export.BaseURL = defaultBackendURL
	}
	setLoggingDefaults(&cfg.Logging)
	if cfg.ItemsPath == "" {
		cfg.ItemsPath = defaultItemsPath
	}
}

func setFetcherDefaults(f *fetcher.Config) {
	if f.Timeout == 0 {
		f.Timeout = defaultHTTPTimeout
	}
	if f.MinDelay == 0 {
		f.MinDelay = defaultMinDelay
	}
	if f.Jitter == 0 {
		f.Jitter = defaultJitter
	}
	if f.AcceptLanguage == "" {
		f.AcceptLanguage = defaultAcceptLang
	}
}

func setLoggingDefaults(l *logger.Config) {
	if l.Level == "" {
		l.Level = defaultLoggingLevel
	}
	if l.Encoding == "" {
		l.Encoding = defaultLoggingEnc
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.FX.RateToUSD < 0 {
		return &ValidationError{Field: "fx.rate_to_usd", Message: "must not be negative"}
	}
	if c.Fetcher.MinDelay < 0 {
		return &ValidationError{Field: "fetcher.min_delay", Message: "must not be negative"}
	}
	if c.Crawl.MaxPages < 0 {
		return &ValidationError{Field: "crawl.max_pages", Message: "must not be negative"}
	}
	return nil
}

// Toggles returns the eligibility-filter toggles.
func (c *Config) Toggles() card.Toggles {
	return c.Crawl.Toggles
}
