package reload

import (
	"context"
	"fmt"
	"log/slog"
)

// Reloader re-reads settings from their backing file. *settings.Store
// implements it.
type Reloader interface {
	Reload() error
}

// Handler applies settings file changes to a Reloader.
type Handler struct {
	target   Reloader
	logger   *slog.Logger
	onReload func()
}

// NewHandler creates a reload handler. onReload, if set, runs after every
// successful reload.
func NewHandler(target Reloader, logger *slog.Logger, onReload func()) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{target: target, logger: logger, onReload: onReload}
}

// HandleReload reloads the settings. An invalid file is reported and the
// current settings stay in effect.
func (h *Handler) HandleReload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}
	if err := h.target.Reload(); err != nil {
		return fmt.Errorf("reloading settings: %w", err)
	}
	h.logger.Info("settings reloaded")
	if h.onReload != nil {
		h.onReload()
	}
	return nil
}

// Run consumes watcher events until ctx is done.
func (h *Handler) Run(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			if err := h.HandleReload(ctx); err != nil {
				h.logger.Warn("settings reload failed, keeping current settings", "path", ev.Path, "error", err)
			}
		case err := <-w.Errors():
			h.logger.Warn("settings watcher error", "error", err)
		}
	}
}
