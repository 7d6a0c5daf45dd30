package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store. It
// backs the memory.ephemeral module and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	facts   []Fact
	entries []Entry
	nextID  int64
}

// NewInMemoryStore creates a new empty memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// newestFirst orders by creation time then ID, both descending.
func newestFirst(at, bt time.Time, aid, bid int64) int {
	if c := bt.Compare(at); c != 0 {
		return c
	}
	return cmp.Compare(bid, aid)
}

func sortFacts(facts []Fact) {
	slices.SortFunc(facts, func(a, b Fact) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

// InsertEntry implements Store.
func (s *InMemoryStore) InsertEntry(_ context.Context, e Entry, keep int) (Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := e.Partition()
	for _, old := range s.entries {
		if old.Partition() == p && old.CreatedAt.After(e.CreatedAt) {
			e.CreatedAt = old.CreatedAt
		}
	}
	s.nextID++
	e.ID = s.nextID
	s.entries = append(s.entries, e)

	var inPartition []Entry
	for _, old := range s.entries {
		if old.Partition() == p {
			inPartition = append(inPartition, old)
		}
	}
	if len(inPartition) <= keep {
		return e, 0, nil
	}
	sortEntries(inPartition)
	drop := make(map[int64]struct{}, len(inPartition)-keep)
	for _, old := range inPartition[keep:] {
		drop[old.ID] = struct{}{}
	}
	s.entries = slices.DeleteFunc(s.entries, func(x Entry) bool {
		_, ok := drop[x.ID]
		return ok
	})
	return e, len(drop), nil
}

// InsertFact implements Store.
func (s *InMemoryStore) InsertFact(_ context.Context, f Fact, limits FactLimits) (Fact, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, old := range s.facts {
		if old.UserID == f.UserID && old.GuildID == f.GuildID && old.CreatedAt.After(f.CreatedAt) {
			f.CreatedAt = old.CreatedAt
		}
	}
	s.nextID++
	f.ID = s.nextID
	s.facts = append(s.facts, f)

	evicted := 0
	if f.FactType == FactTypePreference && limits.MaxPreferences > 0 {
		evicted += s.pruneFactsLocked(f.UserID, f.GuildID, FactTypePreference, limits.MaxPreferences)
	}
	if limits.MaxFacts > 0 {
		evicted += s.pruneFactsLocked(f.UserID, f.GuildID, "", limits.MaxFacts)
	}
	return f, evicted, nil
}

func (s *InMemoryStore) pruneFactsLocked(userID, guildID, factType string, keep int) int {
	var matching []Fact
	for _, f := range s.facts {
		if f.UserID == userID && f.GuildID == guildID && (factType == "" || f.FactType == factType) {
			matching = append(matching, f)
		}
	}
	if len(matching) <= keep {
		return 0
	}
	sortFacts(matching)
	drop := make(map[int64]struct{}, len(matching)-keep)
	for _, f := range matching[keep:] {
		drop[f.ID] = struct{}{}
	}
	s.facts = slices.DeleteFunc(s.facts, func(x Fact) bool {
		_, ok := drop[x.ID]
		return ok
	})
	return len(drop)
}

// RecentEntries implements Store.
func (s *InMemoryStore) RecentEntries(_ context.Context, p Partition, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Partition() == p {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return truncate(out, limit), nil
}

// RecentFacts implements Store.
func (s *InMemoryStore) RecentFacts(_ context.Context, userID, guildID string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Fact
	for _, f := range s.facts {
		if f.UserID == userID && f.GuildID == guildID {
			out = append(out, f)
		}
	}
	sortFacts(out)
	return truncate(out, limit), nil
}

// ListFacts implements Store.
func (s *InMemoryStore) ListFacts(_ context.Context, q FactQuery) ([]Fact, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Fact
	for _, f := range s.facts {
		if matches(q.GuildID, f.GuildID) && matches(q.UserID, f.UserID) && matches(q.FactType, f.FactType) {
			out = append(out, f)
		}
	}
	sortFacts(out)
	items, total := window(out, q.Window)
	return items, total, nil
}

// ListEntries implements Store.
func (s *InMemoryStore) ListEntries(_ context.Context, q EntryQuery) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if matches(q.GuildID, e.GuildID) && matches(q.UserID, e.UserID) &&
			matches(q.ChannelID, e.ChannelID) && matches(string(q.Type), string(e.Type)) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	items, total := window(out, q.Window)
	return items, total, nil
}

// DeleteFact implements Store.
func (s *InMemoryStore) DeleteFact(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.facts)
	s.facts = slices.DeleteFunc(s.facts, func(f Fact) bool { return f.ID == id })
	return len(s.facts) < n, nil
}

// DeleteEntry implements Store.
func (s *InMemoryStore) DeleteEntry(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.ID == id })
	return len(s.entries) < n, nil
}

// ClearUser implements Store.
func (s *InMemoryStore) ClearUser(_ context.Context, userID, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.facts) + len(s.entries)
	s.facts = slices.DeleteFunc(s.facts, func(f Fact) bool {
		return f.UserID == userID && f.GuildID == guildID
	})
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool {
		return e.UserID == userID && e.GuildID == guildID
	})
	return before - len(s.facts) - len(s.entries), nil
}

// Stats implements Store.
func (s *InMemoryStore) Stats(_ context.Context, guildID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{FactsByType: map[string]int{}, EntriesByType: map[string]int{}}
	users := make(map[string]struct{})
	for _, f := range s.facts {
		if !matches(guildID, f.GuildID) {
			continue
		}
		st.TotalFacts++
		st.FactsByType[f.FactType]++
		users[f.UserID] = struct{}{}
	}
	for _, e := range s.entries {
		if !matches(guildID, e.GuildID) {
			continue
		}
		st.TotalMemories++
		st.EntriesByType[string(e.Type)]++
		users[e.UserID] = struct{}{}
		if st.OldestEntry.IsZero() || e.CreatedAt.Before(st.OldestEntry) {
			st.OldestEntry = e.CreatedAt
		}
		if e.CreatedAt.After(st.NewestEntry) {
			st.NewestEntry = e.CreatedAt
		}
	}
	st.UniqueUsers = len(users)
	return st, nil
}

// PruneBefore implements Store.
func (s *InMemoryStore) PruneBefore(_ context.Context, cutoff time.Time) (PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res PruneResult
	nf, ne := len(s.facts), len(s.entries)
	s.facts = slices.DeleteFunc(s.facts, func(f Fact) bool { return f.CreatedAt.Before(cutoff) })
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.CreatedAt.Before(cutoff) })
	res.Facts = nf - len(s.facts)
	res.Entries = ne - len(s.entries)
	return res, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }

func matches(filter, value string) bool {
	return filter == "" || filter == value
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func window[T any](items []T, w Window) ([]T, int) {
	total := len(items)
	limit, offset := w.LimitOffset()
	if limit == 0 {
		return items, total
	}
	if offset >= total {
		return nil, total
	}
	end := min(offset+limit, total)
	return items[offset:end], total
}
