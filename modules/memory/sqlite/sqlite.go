// Package sqlite provides the persistent memory backend. It stores facts and
// conversation entries in a single SQLite database through modernc.org/sqlite
// (pure Go, no CGO) with WAL enabled by default.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext key the store is registered under.
const ServiceName = "memory.store"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module opens the memory database during provisioning and publishes it
// as the "memory.store" service. When the database cannot be opened and
// the module is not marked required, it registers nothing and the bot
// runs without memory.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if err := m.config.validate(); err != nil {
		return err
	}
	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	store, err := Open(context.Background(), m.config.Options())
	if err != nil {
		if m.config.Required {
			return err
		}
		m.logger.Warn("memory database unavailable, continuing without memory",
			"path", m.config.Path,
			"error", err,
		)
		return nil
	}

	m.store = store
	ctx.RegisterService(ServiceName, memory.Store(store))

	m.logger.Info("sqlite memory module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"max_open_conns", m.config.MaxOpenConns,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if m.store == nil {
		return nil
	}

	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := m.store.SchemaVersion(context.Background()); err != nil {
		return err
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("sqlite memory module stopping")
	return m.store.Close()
}

// Store returns the opened store, or nil when the database is unavailable.
func (m *Module) Store() *Store {
	return m.store
}
