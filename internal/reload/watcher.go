// Package reload hot-reloads the runtime settings file when it changes on
// disk.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Path is the file to watch. Its directory is watched so that atomic
	// replacement (write temp file, rename) is seen.
	Path string

	// Debounce coalesces bursts of events. Defaults to 250ms.
	Debounce time.Duration
}

func (c WatcherConfig) debounceOrDefault() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce
	}
	return defaultDebounce
}

// Event reports that the watched file changed.
type Event struct {
	Path string
}

// Watcher emits an Event after the watched file is written, created or
// renamed into place, once the burst of filesystem events settles.
type Watcher struct {
	cfg     WatcherConfig
	fs      *fsnotify.Watcher
	events  chan Event
	errors  chan error
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher for cfg.Path. The directory must exist.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: creating watcher: %w", err)
	}
	cfg.Path = filepath.Clean(cfg.Path)
	if err := fsw.Add(filepath.Dir(cfg.Path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("reload: watching %s: %w", filepath.Dir(cfg.Path), err)
	}
	return &Watcher{
		cfg:     cfg,
		fs:      fsw,
		events:  make(chan Event, 1),
		errors:  make(chan error, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start begins watching. Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.loop(ctx)
	})
}

// Events returns the channel of change events. At most one event is
// buffered; further changes before it is consumed are coalesced.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns watcher errors. Errors are dropped when nobody reads.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases its resources. Safe to call more
// than once, and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.fs.Close()
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.cfg.Path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.debounceOrDefault())
			} else {
				timer.Reset(w.cfg.debounceOrDefault())
			}
			pending = timer.C
		case <-pending:
			pending = nil
			select {
			case w.events <- Event{Path: w.cfg.Path}:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}
