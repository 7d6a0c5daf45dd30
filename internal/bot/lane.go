package bot

import (
	"sync"

	"github.com/flemzord/membot/internal/memory"
)

// LaneLock serializes turns within one memory partition while turns of
// different partitions run in parallel. Lanes are created on demand and
// dropped as soon as nobody holds or waits on them.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[memory.Partition]*lane
}

// lane counts goroutines holding or waiting on its mutex.
type lane struct {
	mu   sync.Mutex
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{lanes: make(map[memory.Partition]*lane)}
}

// Acquire locks the lane of p. The caller must call Release with the same
// partition when done.
func (l *LaneLock) Acquire(p memory.Partition) {
	l.mu.Lock()
	ln, ok := l.lanes[p]
	if !ok {
		ln = &lane{}
		l.lanes[p] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other partitions are not blocked.
	ln.mu.Lock()
}

// Release unlocks the lane of p.
func (l *LaneLock) Release(p memory.Partition) {
	l.mu.Lock()
	ln, ok := l.lanes[p]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, p)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Len returns the number of live lanes.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
