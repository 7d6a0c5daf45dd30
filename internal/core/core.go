package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// stopTimeout bounds how long the modules together get to stop.
const stopTimeout = 30 * time.Second

// App runs a set of modules. Modules start in load order and stop in
// reverse, so the memory backend, loaded first, is closed last.
type App struct {
	ctx     *AppContext
	logger  *slog.Logger
	modules []*loadedModule
}

type loadedModule struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp returns an App that loads modules through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// LoadModules loads the modules in order. On failure the modules loaded
// so far are stopped and the *LoadError is returned.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Unload()
			return err
		}
		a.add(mod.ModuleInfo().ID, mod)
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds a module the host built itself, such as the bot
// runtime, after the ones from the config file. It starts after and
// stops before everything it depends on.
func (a *App) AppendModule(id string, mod Module) {
	a.add(ModuleID(id), mod)
}

func (a *App) add(id ModuleID, mod Module) {
	a.modules = append(a.modules, &loadedModule{id: id, module: mod})
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, lm := range a.modules {
		if string(lm.id) == id {
			return lm.module, true
		}
	}
	return nil, false
}

// Start runs Start on every module that has one. Modules without Start
// still count as running so that Stop reaches them. When a module fails
// to start, the ones before it are stopped again.
func (a *App) Start() error {
	for i, lm := range a.modules {
		if s, ok := lm.module.(Starter); ok {
			a.logger.Info("starting module", "module", string(lm.id))
			if err := s.Start(); err != nil {
				a.logger.Error("module start failed", "module", string(lm.id), "error", err)
				_ = a.stop(a.modules[:i], false)
				return fmt.Errorf("starting module %s: %w", lm.id, err)
			}
		}
		lm.running = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops the running modules in reverse order and returns their
// errors joined. Calling it again is a no-op.
func (a *App) Stop() error {
	return a.stop(a.modules, false)
}

// Unload stops every loaded module, running or not, and forgets them.
// It releases what Provision acquired when the app will not run.
func (a *App) Unload() {
	_ = a.stop(a.modules, true)
	a.modules = nil
}

func (a *App) stop(mods []*loadedModule, all bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var errs []error
	for i := len(mods) - 1; i >= 0; i-- {
		lm := mods[i]
		if !lm.running && !all {
			continue
		}
		lm.running = false
		s, ok := lm.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Info("stopping module", "module", string(lm.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop failed", "module", string(lm.id), "error", err)
			errs = append(errs, fmt.Errorf("stopping module %s: %w", lm.id, err))
		}
	}
	return errors.Join(errs...)
}
