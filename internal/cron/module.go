package cron

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/internal/settings"
)

func init() {
	core.RegisterModule(&Module{})
}

// ModuleConfig configures the scheduler module.
type ModuleConfig struct {
	// RetentionSchedule overrides memory.retention_sweep.schedule.
	RetentionSchedule string `yaml:"retention_schedule"`
	StatsSchedule     string `yaml:"stats_schedule"`
	DisableStats      bool   `yaml:"disable_stats"`
}

// Module schedules memory maintenance jobs. Its dependencies are resolved
// at Start because the memory service is registered after provisioning.
type Module struct {
	config    ModuleConfig
	appCtx    *core.AppContext
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "scheduler.cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.scheduler = NewScheduler(ctx.Logger)
	ctx.RegisterService("scheduler.cron", m.scheduler)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	var errs []error
	for field, expr := range map[string]string{
		"retention_schedule": m.config.RetentionSchedule,
		"stats_schedule":     m.config.StatsSchedule,
	} {
		if expr == "" {
			continue
		}
		if err := ParseSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.cron: %s: %w", field, err))
		}
	}
	return errors.Join(errs...)
}

// Start implements core.Starter.
func (m *Module) Start() error {
	mem, ok := core.Service[*memory.Service](m.appCtx, "memory.service")
	if !ok {
		return errors.New("scheduler.cron: memory.service not registered")
	}
	st, ok := core.Service[*settings.Store](m.appCtx, "settings.store")
	if !ok {
		return errors.New("scheduler.cron: settings.store not registered")
	}
	audit, _ := core.Service[*security.AuditLogger](m.appCtx, "security.audit")

	if err := m.scheduler.RegisterJob(&RetentionSweepJob{
		Memory:       mem,
		Settings:     st,
		Audit:        audit,
		Logger:       m.appCtx.Logger,
		ScheduleExpr: m.config.RetentionSchedule,
	}); err != nil {
		return err
	}
	if !m.config.DisableStats {
		if err := m.scheduler.RegisterJob(&StatsReportJob{
			Memory:       mem,
			Logger:       m.appCtx.Logger,
			ScheduleExpr: m.config.StatsSchedule,
		}); err != nil {
			return err
		}
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Scheduler returns the module's scheduler.
func (m *Module) Scheduler() *Scheduler { return m.scheduler }
