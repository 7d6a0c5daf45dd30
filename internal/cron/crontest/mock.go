// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync"
	"time"

	"github.com/flemzord/membot/internal/cron"
	"github.com/flemzord/membot/internal/memory"
)

// MockJob is a configurable test double for cron.Job.
type MockJob struct {
	NameVal     string
	ScheduleVal string
	RunFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// Compile-time interface check.
var _ cron.Job = (*MockJob)(nil)

// Name implements cron.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Schedule implements cron.Job.
func (m *MockJob) Schedule() string { return m.ScheduleVal }

// Run implements cron.Job and increments the call counter.
func (m *MockJob) Run(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockPruner is a test double for cron.Pruner that records the ages it
// was asked to prune.
type MockPruner struct {
	Result memory.PruneResult
	Err    error

	mu   sync.Mutex
	ages []time.Duration
}

// Compile-time interface check.
var _ cron.Pruner = (*MockPruner)(nil)

// PruneExpired implements cron.Pruner.
func (m *MockPruner) PruneExpired(_ context.Context, maxAge time.Duration) (memory.PruneResult, memory.Result) {
	m.mu.Lock()
	m.ages = append(m.ages, maxAge)
	m.mu.Unlock()
	if m.Err != nil {
		return memory.PruneResult{}, memory.Failed(m.Err)
	}
	return m.Result, memory.Succeeded()
}

// Ages returns the max ages passed to PruneExpired.
func (m *MockPruner) Ages() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.ages...)
}
