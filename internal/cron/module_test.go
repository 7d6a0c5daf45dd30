package cron

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/settings"
)

func mustNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatal(err)
	}
	return doc.Content[0]
}

func TestModule_StartRegistersJobs(t *testing.T) {
	t.Parallel()

	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	st := settings.NewStore(settings.Default())
	appCtx.RegisterService("settings.store", st)
	appCtx.RegisterService("memory.service", memory.NewService(memory.NewInMemoryStore(), st))

	m := &Module{}
	if err := m.Configure(mustNode(t, `stats_schedule: "@every 1h"`)); err != nil {
		t.Fatal(err)
	}
	if err := m.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	jobs := m.Scheduler().Jobs()
	if !slices.Contains(jobs, "retention_sweep") || !slices.Contains(jobs, "stats_report") {
		t.Fatalf("jobs = %v", jobs)
	}
	if err := m.Scheduler().RunNow("retention_sweep"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
}

func TestModule_StartWithoutMemoryFails(t *testing.T) {
	t.Parallel()

	m := &Module{}
	_ = m.Provision(core.NewAppContext(nil, t.TempDir()))
	if err := m.Start(); err == nil {
		t.Fatal("expected error without memory service")
	}
}

func TestModule_ValidateRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(mustNode(t, `retention_schedule: "whenever"`)); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
