// Package ephemeral provides a process-local memory backend. Everything is
// lost on restart; it suits development and tests without a database.
package ephemeral

import (
	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
)

// ServiceName is the service key the backend is registered under.
const ServiceName = "memory.store"

func init() {
	core.RegisterModule(&Module{})
}

// Module registers a memory.InMemoryStore.
type Module struct {
	store *memory.InMemoryStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.ephemeral",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable. The module takes no options.
func (m *Module) Configure(*yaml.Node) error { return nil }

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.store = memory.NewInMemoryStore()
	ctx.RegisterService(ServiceName, memory.Store(m.store))
	ctx.Logger.Warn("using ephemeral memory; nothing survives a restart")
	return nil
}
