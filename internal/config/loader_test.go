package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("MEMBOT_TEST_DIR", "/srv/membot")
	raw := []byte(`
version: "1"
data_dir: ${MEMBOT_TEST_DIR}
log_level: ${MEMBOT_TEST_LEVEL:-warn}
bot:
  memory_timeout: 3s
modules:
  memory.sqlite:
    path: ${MEMBOT_TEST_DIR}/memory.db
`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DataDir != "/srv/membot" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want default warn", cfg.LogLevel)
	}
	if cfg.Bot.MemoryTimeout != 3*time.Second {
		t.Errorf("MemoryTimeout = %v", cfg.Bot.MemoryTimeout)
	}
	if !cfg.Bot.AutoStartEnabled() {
		t.Error("auto start should default to true")
	}
	node, ok := cfg.Modules["memory.sqlite"]
	if !ok {
		t.Fatal("memory.sqlite module missing")
	}
	var mod struct {
		Path string `yaml:"path"`
	}
	if err := node.Decode(&mod); err != nil {
		t.Fatal(err)
	}
	if mod.Path != "/srv/membot/memory.db" {
		t.Errorf("module path = %q", mod.Path)
	}
}

func TestParse_UnresolvedVariables(t *testing.T) {
	_, err := Parse([]byte("data_dir: ${MEMBOT_TEST_UNSET_A}\nlog_level: ${MEMBOT_TEST_UNSET_B}\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"MEMBOT_TEST_UNSET_A", "MEMBOT_TEST_UNSET_B"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestParse_AutoStartDisabled(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte("version: \"1\"\nbot:\n  auto_start: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bot.AutoStartEnabled() {
		t.Error("auto_start: false should disable auto start")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestFind_Explicit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Find(path)
	if err != nil || got != path {
		t.Fatalf("Find = %q, %v", got, err)
	}
	if _, err := Find(path + ".missing"); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestFind_XDGConfigHome(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	if _, err := Find(""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	path := filepath.Join(xdg, "membot", FileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := Find("")
	if err != nil || got != path {
		t.Fatalf("Find = %q, %v", got, err)
	}
}
