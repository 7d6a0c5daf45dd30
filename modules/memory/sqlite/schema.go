package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

// Timestamps are unix milliseconds. AUTOINCREMENT keeps IDs monotonic
// after deletes so they can break timestamp ties in eviction order.
var migrations = []migration{
	{
		Version:     1,
		Description: "facts: durable statements about users",
		SQL: `
CREATE TABLE facts (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       TEXT    NOT NULL,
    guild_id      TEXT    NOT NULL,
    fact_type     TEXT    NOT NULL,
    value         TEXT    NOT NULL,
    confidence    REAL    NOT NULL CHECK (confidence BETWEEN 0 AND 10),
    reporter_id   TEXT    NOT NULL DEFAULT '',
    reporter_name TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL
);

CREATE INDEX idx_facts_partition ON facts(user_id, guild_id, created_at DESC, id DESC);
CREATE INDEX idx_facts_guild     ON facts(guild_id, created_at DESC);
CREATE INDEX idx_facts_type      ON facts(fact_type);
CREATE INDEX idx_facts_created   ON facts(created_at);
`,
	},
	{
		Version:     2,
		Description: "memory_entries: recorded conversation turns",
		SQL: `
CREATE TABLE memory_entries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id         TEXT    NOT NULL,
    channel_id      TEXT    NOT NULL,
    guild_id        TEXT    NOT NULL,
    user_message    TEXT    NOT NULL DEFAULT '',
    bot_response    TEXT    NOT NULL DEFAULT '',
    user_name       TEXT    NOT NULL DEFAULT '',
    entry_type      TEXT    NOT NULL DEFAULT 'conversation' CHECK (entry_type IN ('conversation', 'fact', 'preference')),
    importance      REAL    NOT NULL DEFAULT 5 CHECK (importance BETWEEN 0 AND 10),
    subject_user_id TEXT    NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_entries_partition ON memory_entries(user_id, channel_id, guild_id, created_at DESC, id DESC);
CREATE INDEX idx_entries_guild     ON memory_entries(guild_id, created_at DESC);
CREATE INDEX idx_entries_subject   ON memory_entries(subject_user_id);
CREATE INDEX idx_entries_created   ON memory_entries(created_at);
`,
	},
}

// migrate applies every migration not yet recorded in schema_versions,
// each in its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT    NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)`); err != nil {
		return fmt.Errorf("sqlite: create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("sqlite: check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&v); err != nil {
		return 0, fmt.Errorf("sqlite: read schema version: %w", err)
	}
	return v, nil
}
