// Package core provides the module system foundation for membot.
package core

import (
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModule is returned when no module is registered under an ID.
var ErrUnknownModule = errors.New("unknown module")

// Phase names a step of loading a module.
type Phase string

// Load phases, in the order they run.
const (
	PhaseLookup    Phase = "lookup"
	PhaseConfigure Phase = "configure"
	PhaseProvision Phase = "provision"
	PhaseValidate  Phase = "validate"
)

// LoadError reports which module failed to load and in which phase.
type LoadError struct {
	Module string
	Phase  Phase
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("module %s: %s: %v", e.Module, e.Phase, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AppContext is handed to modules during provisioning. Contexts derived
// with ForModule share one service registry.
type AppContext struct {
	// Logger is tagged with the module ID inside Provision.
	Logger *slog.Logger

	// DataDir holds membot's persistent state: the settings file, the
	// audit log and, by default, the memory database.
	DataDir string

	root          *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

// NewAppContext returns a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: newServiceRegistry(),
	}
}

// WithModuleConfigs returns a copy carrying the modules section of the
// config file, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a context whose logger carries the module ID.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// LoadModule builds the module registered under id and runs it through
// Configure, Provision and Validate, skipping the interfaces it does not
// implement. Failures are returned as *LoadError.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, &LoadError{Module: id, Phase: PhaseLookup, Err: ErrUnknownModule}
	}
	mod := info.New()

	steps := []struct {
		phase Phase
		run   func() error
	}{
		{PhaseConfigure, func() error {
			c, ok := mod.(Configurable)
			node, has := ctx.moduleConfigs[id]
			if !ok || !has {
				return nil
			}
			return c.Configure(&node)
		}},
		{PhaseProvision, func() error {
			if p, ok := mod.(Provisioner); ok {
				return p.Provision(ctx.ForModule(info.ID))
			}
			return nil
		}},
		{PhaseValidate, func() error {
			if v, ok := mod.(Validator); ok {
				return v.Validate()
			}
			return nil
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, &LoadError{Module: id, Phase: step.phase, Err: err}
		}
	}
	return mod, nil
}
