// Package config loads the ferment-cli YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/robertmeta/ferment-cli/stress"
	"gopkg.in/yaml.v3"
)

// Default values for the configuration.
const (
	DefaultAddr         = ":8080"
	DefaultLogLevel     = "info"
	DefaultDigestTitle  = "ferment-cli status"
	DefaultDigestLink   = "http://localhost:8080/"
	defaultDirName      = "ferment-cli"
	defaultDBFileName   = "ferment-cli.db"
	defaultFileBaseName = "config.yaml"
)

// Config holds the settings parsed from config.yaml.
type Config struct {
	// DB is the SQLite database path.
	DB string `yaml:"db"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Locations adds speed multipliers for storage locations beyond the
	// built-in counter (1.0) and fridge (1/3).
	Locations map[string]float64 `yaml:"locations"`

	Server ServerConfig `yaml:"server"`
	Digest DigestConfig `yaml:"digest"`
}

// ServerConfig holds the serve command settings.
type ServerConfig struct {
	// Addr is the HTTP listen address (default ":8080").
	Addr string `yaml:"addr"`
}

// DigestConfig describes the published RSS digest.
type DigestConfig struct {
	Title string `yaml:"title"`
	Link  string `yaml:"link"`
}

// SpeedModel returns the location speed table described by the config.
func (c *Config) SpeedModel() *stress.Model {
	return stress.NewModel(c.Locations)
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// Dir returns the per-user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", defaultDirName)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), defaultFileBaseName)
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.DB = expandHome(cfg.DB)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults(), nil
	}
	return cfg, err
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		DB:       filepath.Join(Dir(), defaultDBFileName),
		LogLevel: DefaultLogLevel,
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Digest: DigestConfig{
			Title: DefaultDigestTitle,
			Link:  DefaultDigestLink,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.DB == "" {
		return fmt.Errorf("db must not be empty")
	}
	if _, ok := ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	for loc, speed := range cfg.Locations {
		switch loc {
		case stress.LocationCounter, stress.LocationFridge:
			return fmt.Errorf("locations.%s is built in and cannot be changed", loc)
		case "":
			return fmt.Errorf("locations: empty location name")
		}
		if !(speed > 0) || math.IsInf(speed, 0) {
			return fmt.Errorf("locations.%s speed %v must be a positive number", loc, speed)
		}
	}
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. An empty name is info.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
