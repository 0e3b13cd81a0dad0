// Package config handles parley configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for parley.
type Config struct {
	// Server is the default server name, overridden by the CLI argument.
	Server string `yaml:"server" mapstructure:"server"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// UI settings
	UI UIConfig `yaml:"ui" mapstructure:"ui"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	// Dir is where the session file and the embedded stores live
	// (default: a parley directory under the system temp path).
	Dir string `yaml:"dir" mapstructure:"dir"`

	// BusyTimeoutMs is how long to wait for a locked store (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is the log file path. Empty means a parley.log next to the
	// stores, so the TUI screen is never written to.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// UIConfig contains render loop settings.
type UIConfig struct {
	// FrameInterval is the render cadence of the TUI.
	FrameInterval time.Duration `yaml:"frame_interval" mapstructure:"frame_interval"`

	// StatusTTL is how long a status message stays visible.
	StatusTTL time.Duration `yaml:"status_ttl" mapstructure:"status_ttl"`

	// TimelineLimit is the timeline item count requested when
	// subscribing to the selected room.
	TimelineLimit int `yaml:"timeline_limit" mapstructure:"timeline_limit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir:           filepath.Join(os.TempDir(), "parley"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		UI: UIConfig{
			FrameInterval: 16 * time.Millisecond,
			StatusTTL:     4 * time.Second,
			TimelineLimit: 20,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if c.Storage.BusyTimeoutMs < 0 {
		return fmt.Errorf("storage.busy_timeout_ms must not be negative")
	}
	if c.UI.FrameInterval < time.Millisecond {
		return fmt.Errorf("ui.frame_interval must be at least 1ms")
	}
	if c.UI.StatusTTL < 100*time.Millisecond {
		return fmt.Errorf("ui.status_ttl must be at least 100ms")
	}
	if c.UI.TimelineLimit < 0 {
		return fmt.Errorf("ui.timeline_limit must not be negative")
	}
	return nil
}

// LogFile returns the effective log file path.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Storage.Dir, "parley.log")
}
