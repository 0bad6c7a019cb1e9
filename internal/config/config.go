// Package config reads tabletop settings from the environment. Command-line
// flags override what is read here.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment-provided defaults.
type Config struct {
	// DB is the SQLite database path.
	DB string `env:"TABLETOP_DB" envDefault:"./tabletop.db"`

	// Format is the CLI output format: text or json.
	Format string `env:"TABLETOP_FORMAT" envDefault:"text"`

	Verbose bool `env:"TABLETOP_VERBOSE" envDefault:"false"`

	// MaxSteps bounds the actions one request may execute.
	MaxSteps int `env:"TABLETOP_MAX_STEPS" envDefault:"1000"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the configuration with defaults applied.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Format != "text" && cfg.Format != "json" {
		return Config{}, fmt.Errorf("parse env: TABLETOP_FORMAT must be text or json, got %q", cfg.Format)
	}
	if cfg.MaxSteps <= 0 {
		return Config{}, fmt.Errorf("parse env: TABLETOP_MAX_STEPS must be positive, got %d", cfg.MaxSteps)
	}
	return cfg, nil
}
