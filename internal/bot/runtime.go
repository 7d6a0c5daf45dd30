package bot

import (
	"sync"
	"sync/atomic"
	"time"
)

// Status is a point-in-time view of the runtime.
type Status struct {
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	Restarts        int       `json:"restarts"`
	Messages        int64     `json:"messages"`
	Errors          int64     `json:"errors"`
	MemoryAvailable bool      `json:"memory_available"`
}

// Runtime is the start/stop switch of the bot. A stopped runtime rejects
// messages with ErrNotRunning. It is safe for concurrent use.
type Runtime struct {
	mu        sync.Mutex
	running   bool
	startedAt time.Time
	restarts  int

	messages atomic.Int64
	errors   atomic.Int64

	now      func() time.Time
	onChange func(running bool)
	memoryOK func() bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// OnStateChange registers fn to be called after every start or stop.
func OnStateChange(fn func(running bool)) RuntimeOption {
	return func(r *Runtime) { r.onChange = fn }
}

// WithMemoryCheck reports memory availability in Status.
func WithMemoryCheck(fn func() bool) RuntimeOption {
	return func(r *Runtime) { r.memoryOK = fn }
}

// NewRuntime returns a stopped runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start makes the runtime accept messages.
func (r *Runtime) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.startedAt = r.now()
	r.mu.Unlock()

	r.notify(true)
	return nil
}

// Stop makes the runtime reject messages. Turns already in flight finish.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.running = false
	r.startedAt = time.Time{}
	r.mu.Unlock()

	r.notify(false)
	return nil
}

// Restart stops the runtime if needed and starts it again.
func (r *Runtime) Restart() error {
	r.mu.Lock()
	r.running = true
	r.startedAt = r.now()
	r.restarts++
	r.mu.Unlock()

	r.notify(true)
	return nil
}

// Running reports whether messages are accepted.
func (r *Runtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status returns a snapshot of the runtime.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	s := Status{
		Running:   r.running,
		StartedAt: r.startedAt,
		Restarts:  r.restarts,
	}
	if r.running {
		s.UptimeSeconds = int64(r.now().Sub(r.startedAt).Seconds())
	}
	r.mu.Unlock()

	s.Messages = r.messages.Load()
	s.Errors = r.errors.Load()
	if r.memoryOK != nil {
		s.MemoryAvailable = r.memoryOK()
	}
	return s
}

func (r *Runtime) countMessage(err error) {
	r.messages.Add(1)
	if err != nil {
		r.errors.Add(1)
	}
}

func (r *Runtime) notify(running bool) {
	if r.onChange != nil {
		r.onChange(running)
	}
}
