package config

import (
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestResolve_BackendsFirst(t *testing.T) {
	t.Parallel()
	cfg := &Config{Modules: map[string]yaml.Node{
		"scheduler.cron":             {},
		"gateway.http":               {},
		"memory.sqlite":              {},
		"provider.openai_compatible": {},
	}}
	want := []string{"memory.sqlite", "gateway.http", "provider.openai_compatible", "scheduler.cron"}
	if got := Resolve(cfg); !slices.Equal(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}
