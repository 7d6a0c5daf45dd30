// Package config loads membot.yaml, the bootstrap configuration: where
// data and settings live, logging, telemetry, and which modules to run.
// Runtime settings such as the persona live in the settings file instead.
package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the memory database and audit log. Empty means the
	// platform default.
	DataDir string `yaml:"data_dir,omitempty"`

	// SettingsPath is the runtime settings JSON file. Empty means
	// <data_dir>/settings.json.
	SettingsPath string `yaml:"settings_path,omitempty"`

	// LogLevel is debug, info, warn or error. Default info.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFormat is text or json. Default text.
	LogFormat string `yaml:"log_format,omitempty"`

	// Bot configures the message path.
	Bot BotConfig `yaml:"bot"`

	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "memory.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// BotConfig configures the responder.
type BotConfig struct {
	// ID is the bot's own platform user ID, excluded from mentions.
	ID string `yaml:"id,omitempty"`

	// AutoStart starts answering messages as soon as the process is up.
	// Default true.
	AutoStart *bool `yaml:"auto_start,omitempty"`

	// MemoryTimeout bounds each memory operation. Default 5s.
	MemoryTimeout time.Duration `yaml:"memory_timeout,omitempty"`

	// ExtractionTimeout bounds one background fact extraction. Default 30s.
	ExtractionTimeout time.Duration `yaml:"extraction_timeout,omitempty"`
}

// AutoStartEnabled reports whether the bot starts with the process.
func (b BotConfig) AutoStartEnabled() bool {
	return b.AutoStart == nil || *b.AutoStart
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Tracing telemetry.TracingConfig `yaml:"tracing"`
}
