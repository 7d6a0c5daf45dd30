package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/internal/settings"
)

// Pruner deletes memory older than a maximum age.
type Pruner interface {
	PruneExpired(ctx context.Context, maxAge time.Duration) (memory.PruneResult, memory.Result)
}

// StatsSource aggregates stored memory.
type StatsSource interface {
	Stats(ctx context.Context, guildID string) (memory.Stats, memory.Result)
}

var (
	_ Pruner      = (*memory.Service)(nil)
	_ StatsSource = (*memory.Service)(nil)
)

const day = 24 * time.Hour

// RetentionSweepJob deletes facts and entries older than the decay max
// age. It reads settings on every tick, so enabling or disabling the sweep
// takes effect without a restart; the schedule itself is fixed at Start.
type RetentionSweepJob struct {
	Memory   Pruner
	Settings settings.Source
	Audit    *security.AuditLogger
	Logger   *slog.Logger

	// ScheduleExpr overrides the schedule from settings.
	ScheduleExpr string
}

// Compile-time interface check.
var _ Job = (*RetentionSweepJob)(nil)

// Name implements Job.
func (j *RetentionSweepJob) Name() string { return "retention_sweep" }

// Schedule implements Job.
func (j *RetentionSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	if s := j.Settings.Snapshot().Memory.RetentionSweep.Schedule; s != "" {
		return s
	}
	return settings.DefaultSweepSchedule
}

// Run prunes expired rows when the sweep is enabled.
func (j *RetentionSweepJob) Run(ctx context.Context) error {
	mem := j.Settings.Snapshot().Memory
	if !mem.RetentionSweep.Enabled || mem.Decay.MaxAgeDays <= 0 {
		return nil
	}
	maxAge := time.Duration(mem.Decay.MaxAgeDays * float64(day))

	res, result := j.Memory.PruneExpired(ctx, maxAge)
	if !result.OK {
		return fmt.Errorf("cron: retention sweep: %w", result.Err)
	}
	if res.Entries+res.Facts > 0 {
		j.Logger.Info("cron: retention sweep removed expired memory",
			"entries", res.Entries,
			"facts", res.Facts,
			"max_age_days", mem.Decay.MaxAgeDays,
		)
		j.Audit.Log(security.AuditEvent{
			Type:   security.EventRetentionSweep,
			Actor:  "scheduler",
			Detail: fmt.Sprintf("entries=%d facts=%d", res.Entries, res.Facts),
		})
	}
	return nil
}

// StatsReportJob logs what the store holds.
type StatsReportJob struct {
	Memory       StatsSource
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*StatsReportJob)(nil)

// Name implements Job.
func (j *StatsReportJob) Name() string { return "stats_report" }

// Schedule implements Job.
func (j *StatsReportJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run logs store totals at INFO.
func (j *StatsReportJob) Run(ctx context.Context) error {
	st, res := j.Memory.Stats(ctx, "")
	if !res.OK {
		return fmt.Errorf("cron: stats report: %w", res.Err)
	}
	j.Logger.Info("cron: memory stats",
		"facts", st.TotalFacts,
		"entries", st.TotalMemories,
		"users", st.UniqueUsers,
	)
	return nil
}
