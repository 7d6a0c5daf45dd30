package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Source is the read side of the settings store. Every call returns an
// independent snapshot that later updates never modify.
type Source interface {
	Snapshot() Settings
}

// Static is a Source that always returns the same settings.
type Static Settings

// Snapshot implements Source.
func (s Static) Snapshot() Settings { return Settings(s).Clone() }

// Store holds the current settings and optionally persists them to a JSON
// file. Reads are lock-free; writers are serialized.
type Store struct {
	path    string
	current atomic.Pointer[Settings]
	writeMu sync.Mutex
}

var _ Source = (*Store)(nil)

// NewStore returns an in-memory store seeded with initial. It panics if
// initial is invalid.
func NewStore(initial Settings) *Store {
	if err := initial.Validate(); err != nil {
		panic(fmt.Sprintf("settings: invalid initial settings: %v", err))
	}
	s := &Store{}
	cp := initial.Clone()
	s.current.Store(&cp)
	return s
}

// Open loads the settings file at path. When the file does not exist the
// defaults are written to it.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	loaded, err := Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		loaded = Default()
		if err := Save(path, loaded); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	s.current.Store(&loaded)
	return s, nil
}

// Path returns the backing file path, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// Snapshot implements Source.
func (s *Store) Snapshot() Settings {
	return s.current.Load().Clone()
}

// Replace validates next, persists it when the store is file-backed and
// makes it the current snapshot.
func (s *Store) Replace(next Settings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.path != "" {
		if err := Save(s.path, next); err != nil {
			return err
		}
	}
	cp := next.Clone()
	s.current.Store(&cp)
	return nil
}

// Update applies fn to a copy of the current settings and replaces them
// with the result.
func (s *Store) Update(fn func(*Settings)) error {
	next := s.Snapshot()
	fn(&next)
	return s.Replace(next)
}

// Reload re-reads the backing file. An invalid file leaves the current
// settings untouched.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	loaded, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(&loaded)
	return nil
}

// Load reads and validates a settings file. Fields missing from the file
// keep their default values.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes settings JSON on top of the defaults and validates it.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parsing: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return s, nil
}

// Save writes s to path atomically (temp file then rename).
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encoding: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("settings: replacing %s: %w", path, err)
	}
	return nil
}
