package memory

import (
	"context"
	"time"
)

// FactLimits caps facts per (user, guild). A zero cap disables that
// limit.
type FactLimits struct {
	MaxFacts       int
	MaxPreferences int
}

// Store is a durable backend for facts and entries.
// Implementations must be safe for concurrent use.
//
// Listings are ordered newest first: by CreatedAt descending, then by ID
// descending. Inserts clamp CreatedAt so it never precedes the newest row
// of the same partition, and prune the partition within the same
// transaction, never evicting the row just inserted.
type Store interface {
	// InsertEntry stores e, then keeps at most keep entries in its
	// partition. It returns the stored entry and the number evicted.
	InsertEntry(ctx context.Context, e Entry, keep int) (Entry, int, error)

	// InsertFact stores f, then enforces limits for (f.UserID, f.GuildID).
	InsertFact(ctx context.Context, f Fact, limits FactLimits) (Fact, int, error)

	// RecentEntries returns up to limit entries of the partition.
	RecentEntries(ctx context.Context, p Partition, limit int) ([]Entry, error)

	// RecentFacts returns up to limit facts for (userID, guildID).
	RecentFacts(ctx context.Context, userID, guildID string, limit int) ([]Fact, error)

	// ListFacts returns the window of matching facts and the total match count.
	ListFacts(ctx context.Context, q FactQuery) ([]Fact, int, error)

	// ListEntries returns the window of matching entries and the total match count.
	ListEntries(ctx context.Context, q EntryQuery) ([]Entry, int, error)

	// DeleteFact removes a fact and reports whether it existed.
	DeleteFact(ctx context.Context, id int64) (bool, error)

	// DeleteEntry removes an entry and reports whether it existed.
	DeleteEntry(ctx context.Context, id int64) (bool, error)

	// ClearUser atomically removes every fact and entry of userID in
	// guildID and returns how many rows went away.
	ClearUser(ctx context.Context, userID, guildID string) (int, error)

	// Stats aggregates stored rows; an empty guildID covers all guilds.
	Stats(ctx context.Context, guildID string) (Stats, error)

	// PruneBefore removes every fact and entry created before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (PruneResult, error)

	// Close releases the backend's resources.
	Close() error
}
