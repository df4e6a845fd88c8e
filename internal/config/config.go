// Package config loads service configuration from an optional YAML file
// with environment variable overrides. A .env file in the working
// directory is honored, matching how the hosted deployment supplies its
// endpoint and keys.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-data-service/internal/domain"
	"market-data-service/internal/ingestion"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Feed      FeedConfig      `yaml:"feed"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// IngestionConfig selects series and cadence for the ingestion job.
type IngestionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	BLS      BLSConfig     `yaml:"bls"`
	Metals   MetalsConfig  `yaml:"metals"`
}

// BLSConfig configures the BLS client and which series to track.
type BLSConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Series  []string `yaml:"series"` // data type names, e.g. cpi, unemployment
}

// MetalsConfig configures the metals.dev client and which metals to quote.
type MetalsConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Metals  []string `yaml:"metals"` // data type names, e.g. gold, silver
}

// FeedConfig configures the change feed.
type FeedConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the built-in configuration: the series the service has
// historically tracked, twice-daily ingestion, API on :8080.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Ingestion: IngestionConfig{
			Enabled:  false,
			Interval: 12 * time.Hour,
			BLS:      BLSConfig{Series: []string{string(domain.DataTypeCPI)}},
			Metals:   MetalsConfig{Metals: []string{string(domain.DataTypeGold), string(domain.DataTypeSilver)}},
		},
		Feed: FeedConfig{
			SubscriberBuffer: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds configuration: defaults, then the YAML file (if path is
// non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is normal.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	} else if v := os.Getenv("SUPABASE_DB_URL"); v != "" {
		// Naming convention of the previous hosted setup.
		c.Database.DSN = v
	}
	if v := os.Getenv("BLS_API_KEY"); v != "" {
		c.Ingestion.BLS.APIKey = v
	}
	if v := os.Getenv("METALS_API_KEY"); v != "" {
		c.Ingestion.Metals.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate checks series names and basic bounds.
func (c *Config) Validate() error {
	if c.Ingestion.Interval <= 0 {
		return fmt.Errorf("ingestion interval must be positive")
	}
	for _, name := range c.Ingestion.BLS.Series {
		dt := domain.DataType(name)
		if _, ok := ingestion.BLSSeriesIDs[dt]; !ok {
			return fmt.Errorf("unknown bls series %q", name)
		}
	}
	for _, name := range c.Ingestion.Metals.Metals {
		dt := domain.DataType(name)
		if _, ok := ingestion.MetalNames[dt]; !ok {
			return fmt.Errorf("unknown metal %q", name)
		}
	}
	return nil
}

// RunnerConfig translates the ingestion section into a runner configuration.
func (c *Config) RunnerConfig() ingestion.Config {
	rc := ingestion.Config{
		Interval:  c.Ingestion.Interval,
		BLSSeries: make(map[domain.DataType]string, len(c.Ingestion.BLS.Series)),
	}
	for _, name := range c.Ingestion.BLS.Series {
		dt := domain.DataType(name)
		rc.BLSSeries[dt] = ingestion.BLSSeriesIDs[dt]
	}
	for _, name := range c.Ingestion.Metals.Metals {
		rc.Metals = append(rc.Metals, domain.DataType(name))
	}
	return rc
}
