package memorytest

import (
	"context"
	"time"

	"github.com/flemzord/membot/internal/memory"
)

// FailingStore is a memory.Store whose every operation returns Err.
// When Block is set, operations wait for ctx to end instead.
type FailingStore struct {
	Err   error
	Block bool
}

var _ memory.Store = (*FailingStore)(nil)

func (f *FailingStore) fail(ctx context.Context) error {
	if f.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.Err
}

// InsertEntry implements memory.Store.
func (f *FailingStore) InsertEntry(ctx context.Context, _ memory.Entry, _ int) (memory.Entry, int, error) {
	return memory.Entry{}, 0, f.fail(ctx)
}

// InsertFact implements memory.Store.
func (f *FailingStore) InsertFact(ctx context.Context, _ memory.Fact, _ memory.FactLimits) (memory.Fact, int, error) {
	return memory.Fact{}, 0, f.fail(ctx)
}

// RecentEntries implements memory.Store.
func (f *FailingStore) RecentEntries(ctx context.Context, _ memory.Partition, _ int) ([]memory.Entry, error) {
	return nil, f.fail(ctx)
}

// RecentFacts implements memory.Store.
func (f *FailingStore) RecentFacts(ctx context.Context, _, _ string, _ int) ([]memory.Fact, error) {
	return nil, f.fail(ctx)
}

// ListFacts implements memory.Store.
func (f *FailingStore) ListFacts(ctx context.Context, _ memory.FactQuery) ([]memory.Fact, int, error) {
	return nil, 0, f.fail(ctx)
}

// ListEntries implements memory.Store.
func (f *FailingStore) ListEntries(ctx context.Context, _ memory.EntryQuery) ([]memory.Entry, int, error) {
	return nil, 0, f.fail(ctx)
}

// DeleteFact implements memory.Store.
func (f *FailingStore) DeleteFact(ctx context.Context, _ int64) (bool, error) {
	return false, f.fail(ctx)
}

// DeleteEntry implements memory.Store.
func (f *FailingStore) DeleteEntry(ctx context.Context, _ int64) (bool, error) {
	return false, f.fail(ctx)
}

// ClearUser implements memory.Store.
func (f *FailingStore) ClearUser(ctx context.Context, _, _ string) (int, error) {
	return 0, f.fail(ctx)
}

// Stats implements memory.Store.
func (f *FailingStore) Stats(ctx context.Context, _ string) (memory.Stats, error) {
	return memory.Stats{}, f.fail(ctx)
}

// PruneBefore implements memory.Store.
func (f *FailingStore) PruneBefore(ctx context.Context, _ time.Time) (memory.PruneResult, error) {
	return memory.PruneResult{}, f.fail(ctx)
}

// Close implements memory.Store.
func (f *FailingStore) Close() error { return nil }
