package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/flemzord/membot/internal/bot"
	"github.com/flemzord/membot/internal/config"
	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/provider"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/internal/telemetry"
)

const settingsFile = "settings.json"

// Service names shared with the modules.
const (
	serviceRedactor  = "security.redactor"
	serviceSettings  = "settings.store"
	serviceMetrics   = "telemetry.metrics"
	serviceStore     = "memory.store"
	serviceMemory    = "memory.service"
	serviceResponder = "bot.responder"
	serviceCompleter = "provider.completer"
	serviceDescriber = "provider.describer"
)

// botModuleID is the lifecycle id of the bot runtime.
const botModuleID = "bot"

// botModule wraps the responder so the bot participates in the App
// lifecycle. It is appended after every configured module: it starts last
// and stops first, so in-flight turns drain before storage closes.
type botModule struct {
	responder *bot.Responder
	autoStart bool
	logger    *slog.Logger
}

func (m *botModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: botModuleID}
}

func (m *botModule) Start() error {
	if !m.autoStart {
		m.logger.Info("bot auto start disabled, waiting for the control API")
		return nil
	}
	return m.responder.Runtime().Start()
}

func (m *botModule) Stop(ctx context.Context) error {
	if err := m.responder.Runtime().Stop(); err != nil && !errors.Is(err, bot.ErrNotRunning) {
		return err
	}
	return m.responder.Close(ctx)
}

// wireMemory builds the memory facade over the provisioned backend. With
// no backend module, or one that degraded at provision time, the service
// runs without storage. The backend module owns closing the store.
func wireMemory(
	appCtx *core.AppContext,
	cfg *config.Config,
	store *settings.Store,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *memory.Service {
	backend, _ := core.Service[memory.Store](appCtx, serviceStore)

	opts := []memory.Option{
		memory.WithLogger(logger.With("component", "memory")),
		memory.WithObserver(metrics),
	}
	if cfg.Bot.MemoryTimeout > 0 {
		opts = append(opts, memory.WithTimeout(cfg.Bot.MemoryTimeout))
	}
	svc := memory.NewService(backend, store, opts...)
	appCtx.RegisterService(serviceMemory, svc)
	return svc
}

// wireBot creates the responder and its runtime, registers the responder
// for the gateway, and appends the bot to the app lifecycle. Must be
// called after LoadModules and before Start.
func wireBot(
	app *core.App,
	appCtx *core.AppContext,
	cfg *config.Config,
	store *settings.Store,
	mem *memory.Service,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *bot.Responder {
	completer, ok := core.Service[provider.Completer](appCtx, serviceCompleter)
	if !ok {
		logger.Warn("no provider module configured, replies will fail")
		completer = provider.Unavailable{}
	}
	describer, _ := core.Service[provider.Describer](appCtx, serviceDescriber)

	runtime := bot.NewRuntime(
		bot.OnStateChange(metrics.SetRunning),
		bot.WithMemoryCheck(mem.Available),
	)
	responder := bot.NewResponder(bot.Config{
		Settings:          store,
		Memory:            mem,
		Completer:         completer,
		Describer:         describer,
		Extractor:         memory.NewLLMExtractor(completer),
		Runtime:           runtime,
		Metrics:           metrics,
		Logger:            logger,
		BotID:             cfg.Bot.ID,
		ExtractionTimeout: cfg.Bot.ExtractionTimeout,
	})
	appCtx.RegisterService(serviceResponder, responder)

	app.AppendModule(botModuleID, &botModule{
		responder: responder,
		autoStart: cfg.Bot.AutoStartEnabled(),
		logger:    logger.With("component", "bot"),
	})
	return responder
}
