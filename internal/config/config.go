// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvDatabase = "RULEWEAVE_DB"
	EnvMaxDepth = "RULEWEAVE_MAX_DEPTH"
	EnvLogLevel = "RULEWEAVE_LOG_LEVEL"
)

// Config is the root configuration structure.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// EngineConfig bounds cascades and related-record loading.
type EngineConfig struct {
	MaxDepth        int `yaml:"max_depth"`
	AncestorDepth   int `yaml:"ancestor_depth"`   // Cap for $parent walks
	DescendantDepth int `yaml:"descendant_depth"` // Cap for $child walks
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// Load reads configuration from a YAML file. Environment variables
// override file values; defaults fill what is still unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it is set, and the defaults otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// applyEnvOverrides applies RULEWEAVE_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvMaxDepth); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxDepth = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Engine.MaxDepth == 0 {
		cfg.Engine.MaxDepth = 16
	}
	if cfg.Engine.AncestorDepth == 0 {
		cfg.Engine.AncestorDepth = 8
	}
	if cfg.Engine.DescendantDepth == 0 {
		cfg.Engine.DescendantDepth = 2
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "ruleweave.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate rejects non-positive depths and unknown logging settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("engine.max_depth must be positive, got %d", c.Engine.MaxDepth))
	}
	if c.Engine.AncestorDepth < 1 {
		errs = append(errs, fmt.Errorf("engine.ancestor_depth must be positive, got %d", c.Engine.AncestorDepth))
	}
	if c.Engine.DescendantDepth < 1 {
		errs = append(errs, fmt.Errorf("engine.descendant_depth must be positive, got %d", c.Engine.DescendantDepth))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil || c.Logging.Level == "" {
		errs = append(errs, fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the logging section.
func (c LoggingConfig) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
