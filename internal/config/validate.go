package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/membot/internal/core"
)

// Validate checks the structural validity of a Config: the version, the
// log options, telemetry, and that every module ID is registered. Module
// bodies are validated by the modules themselves.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log_format %q (want text or json)", cfg.LogFormat))
	}

	if cfg.Bot.MemoryTimeout < 0 || cfg.Bot.ExtractionTimeout < 0 {
		errs = append(errs, errors.New("config: bot timeouts must not be negative"))
	}
	if err := cfg.Telemetry.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: telemetry.tracing: %w", err))
	}

	backends := 0
	for id := range cfg.Modules {
		ns := core.ModuleID(id).Namespace()
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, unknownModule(id, ns))
		}
		if ns == "memory" {
			backends++
		}
	}
	if backends > 1 {
		errs = append(errs, errors.New("config: configure at most one memory.* backend"))
	}

	return errors.Join(errs...)
}

func unknownModule(id, namespace string) error {
	var known []string
	for _, info := range core.ModulesIn(namespace) {
		known = append(known, string(info.ID))
	}
	if len(known) == 0 {
		return fmt.Errorf("config: unknown module %q", id)
	}
	return fmt.Errorf("config: unknown module %q (available: %s)", id, strings.Join(known, ", "))
}

// ParseLevel maps a log_level value to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: log_level %q (want debug, info, warn or error)", s)
}
