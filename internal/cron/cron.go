// Package cron runs periodic maintenance for the memory store: the
// retention sweep that physically deletes expired rows and a periodic
// stats report.
package cron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *") or
	// a descriptor such as "@daily".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reports whether expr is a schedule the scheduler accepts.
func ParseSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}
