// Package config holds the settings of a stepping session.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwessels/ppstep"
	"github.com/fwessels/ppstep/internal/view"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration. Command-line flags override it.
type Config struct {
	Prompt        string            `yaml:"prompt"`
	Color         string            `yaml:"color"` // auto, always, never
	Mode          string            `yaml:"mode"`  // free, until-break
	IncludeDirs   []string          `yaml:"include_dirs,omitempty"`
	Defines       map[string]string `yaml:"defines,omitempty"`
	Breakpoints   BreakpointsConfig `yaml:"breakpoints"`
	MaxExpansions int               `yaml:"max_expansions"`
	Logging       LoggingConfig     `yaml:"logging"`
}

// BreakpointsConfig lists the macros to stop at when a session starts.
type BreakpointsConfig struct {
	Call   []string `yaml:"call,omitempty"`
	Expand []string `yaml:"expand,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`          // debug, info, warn, error
	Format string `yaml:"format"`         // json, console
	File   string `yaml:"file,omitempty"` // stderr when empty
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Prompt:        "pp> ",
		Color:         view.ColorAuto,
		Mode:          ppstep.ModeFree.String(),
		MaxExpansions: 1000,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PPSTEP_PROMPT"); v != "" {
		c.Prompt = v
	}
	if v := os.Getenv("PPSTEP_COLOR"); v != "" {
		c.Color = v
	}
	if v := os.Getenv("PPSTEP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PPSTEP_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Color {
	case view.ColorAuto, view.ColorAlways, view.ColorNever:
	default:
		return fmt.Errorf("invalid color mode: %s (valid: auto, always, never)", c.Color)
	}
	if _, err := ppstep.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.MaxExpansions < 0 {
		return fmt.Errorf("max_expansions must not be negative, got %d", c.MaxExpansions)
	}
	if _, err := c.Logging.ZapLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}

// SteppingMode returns the configured initial mode.
func (c *Config) SteppingMode() ppstep.Mode {
	m, err := ppstep.ParseMode(c.Mode)
	if err != nil {
		return ppstep.ModeFree
	}
	return m
}

// ZapLevel parses Level, defaulting to warn.
func (l LoggingConfig) ZapLevel() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.WarnLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("invalid log level: %s", l.Level)
	}
	return lvl, nil
}
