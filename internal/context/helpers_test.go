package ctxengine_test

import (
	"context"
	"sync"

	"github.com/flemzord/membot/internal/memory"
)

// mockEstimator implements ctxengine.TokenEstimator for tests.
type mockEstimator struct{}

func (m *mockEstimator) Estimate(text string) int { return len(text) }

// fakeMemory implements ctxengine.Memory with canned results.
type fakeMemory struct {
	mu      sync.Mutex
	entries []memory.Entry          // newest first
	facts   map[string][]memory.Fact // by user ID, newest first
	turns   []memory.Turn
	limits  map[string]int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{facts: map[string][]memory.Fact{}, limits: map[string]int{}}
}

func (f *fakeMemory) RecentTurns(_ context.Context, _ memory.Partition, limit int) []memory.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits["turns"] = limit
	out := append([]memory.Entry(nil), f.entries...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeMemory) GetFacts(_ context.Context, userID, _ string, limit int) []memory.Fact {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits["facts:"+userID] = limit
	out := append([]memory.Fact(nil), f.facts[userID]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeMemory) RecordTurn(_ context.Context, t memory.Turn) memory.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, t)
	return memory.Succeeded()
}
