package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/telemetry"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func registerStub(t *testing.T, id string) {
	t.Helper()
	core.RegisterModule(&stubModule{id: id})
}

func TestValidate_Valid(t *testing.T) {
	id := "test." + strings.ToLower(t.Name())
	registerStub(t, id)
	cfg := &Config{
		Version:   "1",
		LogLevel:  "debug",
		LogFormat: "json",
		Modules:   map[string]yaml.Node{id: {}},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingVersion(t *testing.T) {
	err := Validate(&Config{})
	if err == nil || !strings.Contains(err.Error(), "version field is required") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	err := Validate(&Config{Version: "2"})
	if err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
}

func TestValidate_UnknownModule(t *testing.T) {
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{"nonexistent.module": {}},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), `unknown module "nonexistent.module"`) {
		t.Fatalf("expected unknown module error, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Version:   "1",
		LogLevel:  "verbose",
		LogFormat: "xml",
		Telemetry: TelemetryConfig{Tracing: telemetry.TracingConfig{SampleRatio: 2}},
		Modules:   map[string]yaml.Node{"missing.one": {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "log_format", "sample_ratio", "missing.one"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidate_OneMemoryBackend(t *testing.T) {
	a := "memory." + strings.ToLower(t.Name()) + "a"
	b := "memory." + strings.ToLower(t.Name()) + "b"
	registerStub(t, a)
	registerStub(t, b)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{a: {}, b: {}},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "at most one memory") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "info", "DEBUG", "warn", "warning", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel(trace) should fail")
	}
}

func TestValidate_UnknownModuleListsNamespace(t *testing.T) {
	known := "cache." + strings.ToLower(t.Name())
	registerStub(t, known)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{"cache.redis": {}},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "available: "+known) {
		t.Fatalf("expected hint listing %s, got %v", known, err)
	}
}
