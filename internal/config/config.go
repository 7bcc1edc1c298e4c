// Package config provides configuration loading for the data server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete data server configuration.
type Config struct {
	// DataDir is the root of the exported content tree.
	DataDir string `yaml:"data_dir"`
	// Glob selects which files under DataDir are ingested.
	Glob string `yaml:"glob"`

	Query QueryConfig `yaml:"query"`

	// PostProcessor is the path of the post-processor module, empty for none.
	PostProcessor string `yaml:"post_processor"`

	Watch WatchConfig `yaml:"watch"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// QueryConfig configures query module loading.
type QueryConfig struct {
	// Dir holds the query modules.
	Dir string `yaml:"dir"`
	// Glob selects modules under Dir for eager loading at startup.
	Glob string `yaml:"glob"`
}

// WatchConfig configures incremental data-dir watching.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// DebounceDelay is how long to wait for more changes before applying.
	DebounceDelay string `yaml:"debounce_delay"`
}

// GetDebounceDelay returns the debounce delay as a duration, falling back to
// 500ms when unset or unparsable.
func (c *WatchConfig) GetDebounceDelay() time.Duration {
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Glob: "**/*.json",
		Query: QueryConfig{
			Glob: "**/*.js",
		},
		Watch: WatchConfig{
			Enabled:       false,
			DebounceDelay: "500ms",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value formats.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Glob == "" {
		return fmt.Errorf("glob must not be empty")
	}
	if c.Watch.DebounceDelay != "" {
		if _, err := time.ParseDuration(c.Watch.DebounceDelay); err != nil {
			return fmt.Errorf("watch.debounce_delay: %w", err)
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}
