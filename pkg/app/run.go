// Package app provides the shared entry point for the membot binary: it
// builds the application from membot.yaml and runs it until shutdown.
package app

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/flemzord/membot/internal/bot"
	"github.com/flemzord/membot/internal/config"
	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/reload"
	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/internal/telemetry"
)

const tracingShutdownTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Find searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the configured data directory.
	DataDir string

	// LogLevel and LogFormat override the configured values when set.
	LogLevel  string
	LogFormat string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer

	// MemoryOnly loads only the memory backend and skips the bot, the
	// gateway and the scheduler. Offline memory commands use it.
	MemoryOnly bool
}

// Instance is a built application. Call Start, then Shutdown.
type Instance struct {
	Config     *config.Config
	ConfigPath string
	DataDir    string
	Logger     *slog.Logger
	Redactor   *security.Redactor
	Settings   *settings.Store
	Metrics    *telemetry.Metrics
	Memory     *memory.Service

	// Responder is nil when built with MemoryOnly.
	Responder *bot.Responder

	app             *core.App
	appCtx          *core.AppContext
	shutdownTracing telemetry.ShutdownFunc
}

// Build loads and validates the configuration, provisions every
// configured module, and wires the memory service and the bot on top of
// them. Nothing is started yet.
func Build(params RunParams) (*Instance, error) {
	cfgPath, err := config.Find(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cmp.Or(params.LogLevel, cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := security.NewRedactor()
	logger := security.NewLogger(out, level, cmp.Or(params.LogFormat, cfg.LogFormat), redactor)

	dataDir := cmp.Or(params.DataDir, cfg.DataDir, DefaultDataDir())
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("app: creating data dir: %w", err)
	}
	settingsPath := cmp.Or(cfg.SettingsPath, filepath.Join(dataDir, settingsFile))
	store, err := settings.Open(settingsPath)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		Config:          cfg,
		ConfigPath:      cfgPath,
		DataDir:         dataDir,
		Logger:          logger,
		Redactor:        redactor,
		Settings:        store,
		Metrics:         telemetry.NewMetrics(),
		shutdownTracing: func(context.Context) error { return nil },
	}

	if !params.MemoryOnly {
		shutdown, err := telemetry.SetupTracing(context.Background(), cfg.Telemetry.Tracing, params.Version, logger)
		if err != nil {
			return nil, err
		}
		inst.shutdownTracing = shutdown
	}

	inst.appCtx = core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	inst.appCtx.RegisterService(serviceRedactor, redactor)
	inst.appCtx.RegisterService(serviceSettings, store)
	inst.appCtx.RegisterService(serviceMetrics, inst.Metrics)

	ids := config.Resolve(cfg)
	if params.MemoryOnly {
		ids = slices.DeleteFunc(ids, func(id string) bool {
			return !strings.HasPrefix(id, "memory.")
		})
	}

	inst.app = core.NewApp(inst.appCtx)
	if err := inst.app.LoadModules(ids); err != nil {
		inst.shutdownTracingNow()
		return nil, err
	}

	inst.Memory = wireMemory(inst.appCtx, cfg, store, inst.Metrics, logger)
	if !params.MemoryOnly {
		inst.Responder = wireBot(inst.app, inst.appCtx, cfg, store, inst.Memory, inst.Metrics, logger)
	}
	return inst, nil
}

// Start starts every module in load order, the bot last.
func (i *Instance) Start() error {
	return i.app.Start()
}

// Shutdown stops the modules in reverse order and flushes traces.
func (i *Instance) Shutdown() {
	if err := i.app.Stop(); err != nil {
		i.Logger.Warn("modules did not stop cleanly", "error", err)
	}
	i.shutdownTracingNow()
}

// Discard releases a built instance that was never started, such as
// after a configuration check.
func (i *Instance) Discard() {
	i.app.Unload()
	i.shutdownTracingNow()
}

func (i *Instance) shutdownTracingNow() {
	ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
	defer cancel()
	if err := i.shutdownTracing(ctx); err != nil {
		i.Logger.Warn("tracing shutdown failed", "error", err)
	}
}

// Run starts membot and blocks until SIGINT or SIGTERM. SIGHUP and
// changes to the settings file reload the runtime settings.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, params)
}

// RunContext is Run with an explicit lifetime: it returns once ctx is
// done and every module has stopped.
func RunContext(ctx context.Context, params RunParams) error {
	inst, err := Build(params)
	if err != nil {
		return err
	}
	if err := inst.Start(); err != nil {
		inst.shutdownTracingNow()
		return err
	}
	logger := inst.Logger

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()

	handler := reload.NewHandler(inst.Settings, logger.With("component", "reload"), nil)
	watcher, err := reload.NewWatcher(reload.WatcherConfig{Path: inst.Settings.Path()})
	if err != nil {
		logger.Warn("settings watcher unavailable, reload with SIGHUP", "error", err)
	} else {
		watcher.Start(watchCtx)
		defer watcher.Stop()
		go handler.Run(watchCtx, watcher)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("membot started",
		"version", cmp.Or(params.Version, "dev"),
		"config", inst.ConfigPath,
		"data_dir", inst.DataDir,
		"memory", inst.Memory.Available(),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			inst.Shutdown()
			logger.Info("shutdown complete")
			return nil
		case <-hup:
			logger.Info("SIGHUP received, reloading settings")
			if err := handler.HandleReload(watchCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/membot if set, otherwise ~/.local/share/membot.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "membot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "membot")
}
