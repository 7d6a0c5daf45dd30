package core

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// hookModule records which lifecycle hooks ran and can fail any of them.
type hookModule struct {
	id       ModuleID
	calls    *[]Phase
	failAt   Phase
	gotValue *string
}

func (m *hookModule) ModuleInfo() ModuleInfo {
	proto := *m
	return ModuleInfo{ID: m.id, New: func() Module { cp := proto; return &cp }}
}

func (m *hookModule) hit(p Phase) error {
	if m.calls != nil {
		*m.calls = append(*m.calls, p)
	}
	if m.failAt == p {
		return errors.New(string(p) + " boom")
	}
	return nil
}

func (m *hookModule) Configure(node *yaml.Node) error {
	if m.gotValue != nil {
		var body struct {
			Path string `yaml:"path"`
		}
		if err := node.Decode(&body); err != nil {
			return err
		}
		*m.gotValue = body.Path
	}
	return m.hit(PhaseConfigure)
}

func (m *hookModule) Provision(*AppContext) error { return m.hit(PhaseProvision) }
func (m *hookModule) Validate() error             { return m.hit(PhaseValidate) }

// bareModule implements none of the optional hooks.
type bareModule struct{ id ModuleID }

func (m bareModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return bareModule{id: m.id} }}
}

func moduleConfig(t *testing.T, src string) map[string]yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	var out map[string]yaml.Node
	if err := doc.Content[0].Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestAppContext_ForModuleTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewAppContext(slog.New(slog.NewTextHandler(&buf, nil)), "/data")

	ctx.ForModule("memory.sqlite").Logger.Info("hello")
	ctx.Logger.Info("root")

	out := buf.String()
	if !strings.Contains(out, "module=memory.sqlite") {
		t.Errorf("child log line lacks module attr: %s", out)
	}
	if strings.Count(out, "module=") != 1 {
		t.Errorf("root logger should not carry the module attr: %s", out)
	}
}

func TestAppContext_LoadModulePhases(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []Phase
	RegisterModule(&hookModule{id: "memory.hooks", calls: &calls})

	ctx := NewAppContext(nil, "/data").WithModuleConfigs(moduleConfig(t, "memory.hooks: {path: x}"))
	mod, err := ctx.LoadModule("memory.hooks")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if mod == nil {
		t.Fatal("LoadModule returned a nil module")
	}
	want := []Phase{PhaseConfigure, PhaseProvision, PhaseValidate}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestAppContext_LoadModuleConfigureSkippedWithoutSection(t *testing.T) {
	t.Cleanup(resetRegistry)

	var calls []Phase
	RegisterModule(&hookModule{id: "memory.hooks", calls: &calls})

	if _, err := NewAppContext(nil, "/data").LoadModule("memory.hooks"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if len(calls) != 2 || calls[0] != PhaseProvision {
		t.Errorf("calls = %v, want provision and validate only", calls)
	}
}

func TestAppContext_LoadModuleDecodesSection(t *testing.T) {
	t.Cleanup(resetRegistry)

	var got string
	RegisterModule(&hookModule{id: "memory.hooks", gotValue: &got})

	cfg := moduleConfig(t, "memory.hooks:\n  path: /var/lib/membot/memory.db\n")
	if _, err := NewAppContext(nil, "/data").WithModuleConfigs(cfg).LoadModule("memory.hooks"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if got != "/var/lib/membot/memory.db" {
		t.Errorf("decoded path = %q", got)
	}
}

func TestAppContext_LoadModuleErrors(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		failAt Phase
		want   Phase
	}{
		{"unknown", "memory.missing", "", PhaseLookup},
		{"configure", "memory.hooks", PhaseConfigure, PhaseConfigure},
		{"provision", "memory.hooks", PhaseProvision, PhaseProvision},
		{"validate", "memory.hooks", PhaseValidate, PhaseValidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)
			RegisterModule(&hookModule{id: "memory.hooks", failAt: tt.failAt})

			ctx := NewAppContext(nil, "/data").WithModuleConfigs(moduleConfig(t, "memory.hooks: {}"))
			_, err := ctx.LoadModule(tt.id)

			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("err = %v, want *LoadError", err)
			}
			if le.Phase != tt.want || le.Module != tt.id {
				t.Errorf("LoadError = %+v, want phase %s for %s", le, tt.want, tt.id)
			}
			if tt.want == PhaseLookup && !errors.Is(err, ErrUnknownModule) {
				t.Errorf("unknown module error should wrap ErrUnknownModule: %v", err)
			}
		})
	}
}

func TestAppContext_LoadModuleIgnoresSectionForPlainModule(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(bareModule{id: "gateway.bare"})

	ctx := NewAppContext(nil, "/data").WithModuleConfigs(moduleConfig(t, "gateway.bare: {listen: x}"))
	if _, err := ctx.LoadModule("gateway.bare"); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
}

func TestAppContext_ServicesSharedAcrossModules(t *testing.T) {
	ctx := NewAppContext(nil, "/data")
	child := ctx.ForModule("memory.sqlite")

	child.RegisterService("memory.store", 42)

	got, ok := Service[int](ctx, "memory.store")
	if !ok {
		t.Fatal("service registered by module should be visible to the parent context")
	}
	if got != 42 {
		t.Errorf("Service = %d, want 42", got)
	}

	if _, ok := Service[string](ctx, "memory.store"); ok {
		t.Error("Service with the wrong type should report false")
	}
	if _, ok := ctx.GetService("missing"); ok {
		t.Error("GetService(missing) should report false")
	}
}

func TestModuleID_Parts(t *testing.T) {
	tests := []struct {
		id       ModuleID
		ns, name string
	}{
		{"memory.sqlite", "memory", "sqlite"},
		{"provider.openai_compatible", "provider", "openai_compatible"},
		{"bot", "bot", ""},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.ns {
			t.Errorf("%q.Namespace() = %q, want %q", tt.id, got, tt.ns)
		}
		if got := tt.id.Name(); got != tt.name {
			t.Errorf("%q.Name() = %q, want %q", tt.id, got, tt.name)
		}
	}
}

func TestRegistry_ModulesIn(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(bareModule{id: "memory.sqlite"})
	RegisterModule(bareModule{id: "memory.ephemeral"})
	RegisterModule(bareModule{id: "gateway.http"})

	got := ModulesIn("memory")
	if len(got) != 2 || got[0].ID != "memory.ephemeral" || got[1].ID != "memory.sqlite" {
		t.Errorf("ModulesIn(memory) = %v", got)
	}
	if all := GetModules(); len(all) != 3 || all[0].ID != "gateway.http" {
		t.Errorf("GetModules = %v", all)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Cleanup(resetRegistry)
	RegisterModule(bareModule{id: "memory.sqlite"})

	defer func() {
		if recover() == nil {
			t.Error("registering a duplicate ID should panic")
		}
	}()
	RegisterModule(bareModule{id: "memory.sqlite"})
}
