// Package config loads tend's settings.
//
// Settings come from a YAML file (default ~/.tend/config.yaml), then from
// TEND_* environment variables, which may themselves be seeded from a .env
// file. The resulting Config is passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the per-user directory holding the database and config file.
	Dir = ".tend"

	// ExhaustedScanToday makes a fruitless next-due scan report the start date.
	ExhaustedScanToday = "today"
	// ExhaustedScanNone makes a fruitless next-due scan report no occurrence.
	ExhaustedScanNone = "none"

	DefaultActor    = "cli"
	DefaultSchedule = "0 8 * * *"
)

// Environment variables that override file settings.
const (
	EnvDB       = "TEND_DB"
	EnvLogLevel = "TEND_LOG_LEVEL"
	EnvTimezone = "TEND_TIMEZONE"
	EnvActor    = "TEND_ACTOR"
)

// Config models ~/.tend/config.yaml.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	Timezone   string           `yaml:"timezone"`
	Actor      string           `yaml:"actor"`
	Recurrence RecurrenceConfig `yaml:"recurrence"`
	Graph      GraphConfig      `yaml:"graph"`
	Watch      WatchConfig      `yaml:"watch"`
}

// RecurrenceConfig tunes the routine engine.
type RecurrenceConfig struct {
	// ExhaustedScan is "today" (default) or "none".
	ExhaustedScan string `yaml:"exhausted_scan"`
}

// GraphConfig tunes the dependency graph.
type GraphConfig struct {
	RejectCycles bool `yaml:"reject_cycles"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Schedule is a standard five-field cron expression.
	Schedule string `yaml:"schedule"`
}

// Default returns the built-in settings. DBPath is left empty and resolved
// by the caller.
func Default() Config {
	return Config{
		LogLevel:   "warn",
		Timezone:   "Local",
		Actor:      DefaultActor,
		Recurrence: RecurrenceConfig{ExhaustedScan: ExhaustedScanToday},
		Watch:      WatchConfig{Schedule: DefaultSchedule},
	}
}

// DefaultPath returns ~/.tend/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, Dir, "config.yaml"), nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvActor); v != "" {
		c.Actor = v
	}
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Recurrence.ExhaustedScan {
	case ExhaustedScanToday, ExhaustedScanNone:
	default:
		return fmt.Errorf("recurrence.exhausted_scan must be %q or %q, got %q",
			ExhaustedScanToday, ExhaustedScanNone, c.Recurrence.ExhaustedScan)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save writes cfg as YAML to path, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
