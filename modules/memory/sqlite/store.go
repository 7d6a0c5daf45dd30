package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/membot/internal/memory"
)

const tracerName = "github.com/flemzord/membot/modules/memory/sqlite"

// Store implements memory.Store on a SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	tracer trace.Tracer
}

var _ memory.Store = (*Store)(nil)

func newStore(db *sql.DB, path string) *Store {
	return &Store{db: db, path: path, tracer: otel.Tracer(tracerName)}
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close implements memory.Store.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "sqlite"), attribute.String("db.operation", op))
	return s.tracer.Start(ctx, "memory.sqlite."+op, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// InsertEntry implements memory.Store.
func (s *Store) InsertEntry(ctx context.Context, e memory.Entry, keep int) (_ memory.Entry, evicted int, err error) {
	ctx, span := s.span(ctx, "insert_entry", attribute.String("guild_id", e.GuildID), attribute.Int("keep", keep))
	defer func() { finish(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.Entry{}, 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var newest int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(created_at), 0) FROM memory_entries
		WHERE user_id = ? AND channel_id = ? AND guild_id = ?`,
		e.UserID, e.ChannelID, e.GuildID,
	).Scan(&newest); err != nil {
		return memory.Entry{}, 0, fmt.Errorf("sqlite: read partition head: %w", err)
	}
	createdAt := max(toMillis(e.CreatedAt), newest)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memory_entries
			(user_id, channel_id, guild_id, user_message, bot_response, user_name,
			 entry_type, importance, subject_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.ChannelID, e.GuildID, e.UserMessage, e.BotResponse, e.UserName,
		string(e.Type), e.Importance, e.SubjectUserID, createdAt,
	)
	if err != nil {
		return memory.Entry{}, 0, fmt.Errorf("sqlite: insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memory.Entry{}, 0, fmt.Errorf("sqlite: entry id: %w", err)
	}

	if keep > 0 {
		res, err = tx.ExecContext(ctx, `
			DELETE FROM memory_entries
			WHERE user_id = ? AND channel_id = ? AND guild_id = ?
			  AND id NOT IN (
				SELECT id FROM memory_entries
				WHERE user_id = ? AND channel_id = ? AND guild_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			  )`,
			e.UserID, e.ChannelID, e.GuildID,
			e.UserID, e.ChannelID, e.GuildID, keep,
		)
		if err != nil {
			return memory.Entry{}, 0, fmt.Errorf("sqlite: prune entries: %w", err)
		}
		n, _ := res.RowsAffected()
		evicted = int(n)
	}

	if err := tx.Commit(); err != nil {
		return memory.Entry{}, 0, fmt.Errorf("sqlite: commit entry: %w", err)
	}

	e.ID = id
	e.CreatedAt = fromMillis(createdAt)
	span.SetAttributes(attribute.Int("evicted", evicted))
	return e, evicted, nil
}

// InsertFact implements memory.Store.
func (s *Store) InsertFact(ctx context.Context, f memory.Fact, limits memory.FactLimits) (_ memory.Fact, evicted int, err error) {
	ctx, span := s.span(ctx, "insert_fact", attribute.String("guild_id", f.GuildID), attribute.String("fact_type", f.FactType))
	defer func() { finish(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.Fact{}, 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var newest int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(created_at), 0) FROM facts WHERE user_id = ? AND guild_id = ?`,
		f.UserID, f.GuildID,
	).Scan(&newest); err != nil {
		return memory.Fact{}, 0, fmt.Errorf("sqlite: read partition head: %w", err)
	}
	createdAt := max(toMillis(f.CreatedAt), newest)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO facts (user_id, guild_id, fact_type, value, confidence, reporter_id, reporter_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UserID, f.GuildID, f.FactType, f.Value, f.Confidence, f.ReporterID, f.ReporterName, createdAt,
	)
	if err != nil {
		return memory.Fact{}, 0, fmt.Errorf("sqlite: insert fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memory.Fact{}, 0, fmt.Errorf("sqlite: fact id: %w", err)
	}

	if f.FactType == memory.FactTypePreference && limits.MaxPreferences > 0 {
		n, err := pruneFacts(ctx, tx, f.UserID, f.GuildID, memory.FactTypePreference, limits.MaxPreferences)
		if err != nil {
			return memory.Fact{}, 0, err
		}
		evicted += n
	}
	if limits.MaxFacts > 0 {
		n, err := pruneFacts(ctx, tx, f.UserID, f.GuildID, "", limits.MaxFacts)
		if err != nil {
			return memory.Fact{}, 0, err
		}
		evicted += n
	}

	if err := tx.Commit(); err != nil {
		return memory.Fact{}, 0, fmt.Errorf("sqlite: commit fact: %w", err)
	}

	f.ID = id
	f.CreatedAt = fromMillis(createdAt)
	return f, evicted, nil
}

// pruneFacts keeps the keep newest facts of (userID, guildID), restricted
// to factType when non-empty.
func pruneFacts(ctx context.Context, tx *sql.Tx, userID, guildID, factType string, keep int) (int, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM facts
		WHERE user_id = ? AND guild_id = ? AND (? = '' OR fact_type = ?)
		  AND id NOT IN (
			SELECT id FROM facts
			WHERE user_id = ? AND guild_id = ? AND (? = '' OR fact_type = ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		  )`,
		userID, guildID, factType, factType,
		userID, guildID, factType, factType, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune facts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const entryColumns = `id, user_id, channel_id, guild_id, user_message, bot_response, user_name,
	entry_type, importance, subject_user_id, created_at`

const factColumns = `id, user_id, guild_id, fact_type, value, confidence, reporter_id, reporter_name, created_at`

// RecentEntries implements memory.Store.
func (s *Store) RecentEntries(ctx context.Context, p memory.Partition, limit int) (_ []memory.Entry, err error) {
	ctx, span := s.span(ctx, "recent_entries", attribute.Int("limit", limit))
	defer func() { finish(span, err) }()
	limit = sqlLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM memory_entries
		WHERE user_id = ? AND channel_id = ? AND guild_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		p.UserID, p.ChannelID, p.GuildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// RecentFacts implements memory.Store.
func (s *Store) RecentFacts(ctx context.Context, userID, guildID string, limit int) (_ []memory.Fact, err error) {
	ctx, span := s.span(ctx, "recent_facts", attribute.Int("limit", limit))
	defer func() { finish(span, err) }()
	limit = sqlLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+` FROM facts
		WHERE user_id = ? AND guild_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent facts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanFacts(rows)
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// filter accumulates optional equality conditions.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) eq(column, value string) {
	if value == "" {
		return
	}
	f.conds = append(f.conds, column+" = ?")
	f.args = append(f.args, value)
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

func paginate(w memory.Window, args []any) (string, []any) {
	limit, offset := w.LimitOffset()
	if limit == 0 {
		return "", args
	}
	return " LIMIT ? OFFSET ?", append(args, limit, offset)
}

// ListFacts implements memory.Store.
func (s *Store) ListFacts(ctx context.Context, q memory.FactQuery) (_ []memory.Fact, total int, err error) {
	ctx, span := s.span(ctx, "list_facts")
	defer func() { finish(span, err) }()

	var f filter
	f.eq("guild_id", q.GuildID)
	f.eq("user_id", q.UserID)
	f.eq("fact_type", q.FactType)

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts"+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count facts: %w", err)
	}

	page, args := paginate(q.Window, append([]any(nil), f.args...))
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+factColumns+" FROM facts"+f.where()+" ORDER BY created_at DESC, id DESC"+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: list facts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	facts, err := scanFacts(rows)
	return facts, total, err
}

// ListEntries implements memory.Store.
func (s *Store) ListEntries(ctx context.Context, q memory.EntryQuery) (_ []memory.Entry, total int, err error) {
	ctx, span := s.span(ctx, "list_entries")
	defer func() { finish(span, err) }()

	var f filter
	f.eq("guild_id", q.GuildID)
	f.eq("user_id", q.UserID)
	f.eq("channel_id", q.ChannelID)
	f.eq("entry_type", string(q.Type))

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory_entries"+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count entries: %w", err)
	}

	page, args := paginate(q.Window, append([]any(nil), f.args...))
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM memory_entries"+f.where()+" ORDER BY created_at DESC, id DESC"+page, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries, err := scanEntries(rows)
	return entries, total, err
}

// DeleteFact implements memory.Store.
func (s *Store) DeleteFact(ctx context.Context, id int64) (_ bool, err error) {
	ctx, span := s.span(ctx, "delete_fact", attribute.Int64("id", id))
	defer func() { finish(span, err) }()
	return s.deleteByID(ctx, "facts", id)
}

// DeleteEntry implements memory.Store.
func (s *Store) DeleteEntry(ctx context.Context, id int64) (_ bool, err error) {
	ctx, span := s.span(ctx, "delete_entry", attribute.Int64("id", id))
	defer func() { finish(span, err) }()
	return s.deleteByID(ctx, "memory_entries", id)
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete from %s: %w", table, err)
	}
	return n > 0, nil
}

// ClearUser implements memory.Store.
func (s *Store) ClearUser(ctx context.Context, userID, guildID string) (_ int, err error) {
	ctx, span := s.span(ctx, "clear_user", attribute.String("guild_id", guildID))
	defer func() { finish(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed int64
	for _, table := range []string{"facts", "memory_entries"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ? AND guild_id = ?", userID, guildID)
		if err != nil {
			return 0, fmt.Errorf("sqlite: clear %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit clear: %w", err)
	}
	return int(removed), nil
}

// Stats implements memory.Store.
func (s *Store) Stats(ctx context.Context, guildID string) (_ memory.Stats, err error) {
	ctx, span := s.span(ctx, "stats", attribute.String("guild_id", guildID))
	defer func() { finish(span, err) }()

	st := memory.Stats{FactsByType: map[string]int{}, EntriesByType: map[string]int{}}
	var f filter
	f.eq("guild_id", guildID)
	where := f.where()

	if err := s.countBy(ctx, "SELECT fact_type, COUNT(*) FROM facts"+where+" GROUP BY fact_type", f.args, st.FactsByType); err != nil {
		return memory.Stats{}, err
	}
	if err := s.countBy(ctx, "SELECT entry_type, COUNT(*) FROM memory_entries"+where+" GROUP BY entry_type", f.args, st.EntriesByType); err != nil {
		return memory.Stats{}, err
	}
	for _, n := range st.FactsByType {
		st.TotalFacts += n
	}
	for _, n := range st.EntriesByType {
		st.TotalMemories += n
	}

	args := append(append([]any(nil), f.args...), f.args...)
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT user_id FROM facts`+where+`
			UNION
			SELECT user_id FROM memory_entries`+where+`
		)`, args...).Scan(&st.UniqueUsers); err != nil {
		return memory.Stats{}, fmt.Errorf("sqlite: count users: %w", err)
	}

	var oldest, newest sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT MIN(created_at), MAX(created_at) FROM memory_entries"+where, f.args...,
	).Scan(&oldest, &newest); err != nil {
		return memory.Stats{}, fmt.Errorf("sqlite: entry range: %w", err)
	}
	if oldest.Valid {
		st.OldestEntry = fromMillis(oldest.Int64)
	}
	if newest.Valid {
		st.NewestEntry = fromMillis(newest.Int64)
	}
	return st, nil
}

func (s *Store) countBy(ctx context.Context, query string, args []any, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("sqlite: scan stats: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// PruneBefore implements memory.Store.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (_ memory.PruneResult, err error) {
	ctx, span := s.span(ctx, "prune_before", attribute.Int64("cutoff_ms", cutoff.UnixMilli()))
	defer func() { finish(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memory.PruneResult{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res memory.PruneResult
	r, err := tx.ExecContext(ctx, "DELETE FROM memory_entries WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return memory.PruneResult{}, fmt.Errorf("sqlite: prune entries: %w", err)
	}
	n, _ := r.RowsAffected()
	res.Entries = int(n)

	r, err = tx.ExecContext(ctx, "DELETE FROM facts WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return memory.PruneResult{}, fmt.Errorf("sqlite: prune facts: %w", err)
	}
	n, _ = r.RowsAffected()
	res.Facts = int(n)

	if err := tx.Commit(); err != nil {
		return memory.PruneResult{}, fmt.Errorf("sqlite: commit prune: %w", err)
	}
	return res, nil
}

func scanEntries(rows *sql.Rows) ([]memory.Entry, error) {
	var out []memory.Entry
	for rows.Next() {
		var e memory.Entry
		var typ string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.ChannelID, &e.GuildID, &e.UserMessage, &e.BotResponse,
			&e.UserName, &typ, &e.Importance, &e.SubjectUserID, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan entry: %w", err)
		}
		e.Type = memory.EntryType(typ)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate entries: %w", err)
	}
	return out, nil
}

func scanFacts(rows *sql.Rows) ([]memory.Fact, error) {
	var out []memory.Fact
	for rows.Next() {
		var f memory.Fact
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.UserID, &f.GuildID, &f.FactType, &f.Value, &f.Confidence,
			&f.ReporterID, &f.ReporterName, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan fact: %w", err)
		}
		f.CreatedAt = fromMillis(createdAt)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate facts: %w", err)
	}
	return out, nil
}
