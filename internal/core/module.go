package core

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModuleID identifies a module. IDs are namespaced with dots,
// e.g. "memory.sqlite" or "gateway.http".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot.
func (id ModuleID) Name() string {
	_, name, _ := strings.Cut(string(id), ".")
	return name
}

// Module is the minimal interface every module implements.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is the unique, namespaced module identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// The optional interfaces below are detected with type assertions while a
// module is loaded and run. Order: Configure, Provision, Validate, then
// Start once every module is loaded, and Stop in reverse on shutdown.

// Configurable modules receive their section of membot.yaml. Configure
// is skipped when the file has no section for the module.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults, open resources and publish or look
// up services on the AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their provisioned state. Validate must not
// have side effects.
type Validator interface {
	Validate() error
}

// Starter modules launch background work such as listeners or schedulers.
type Starter interface {
	Start() error
}

// Stopper modules release what Provision or Start acquired.
type Stopper interface {
	Stop(ctx context.Context) error
}
