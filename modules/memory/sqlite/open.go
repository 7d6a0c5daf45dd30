package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Options controls how a database is opened.
type Options struct {
	Path         string
	WAL          bool
	BusyTimeout  int
	MaxOpenConns int
}

// DefaultOptions returns the options used by the module for path.
func DefaultOptions(path string) Options {
	return Options{
		Path:         path,
		WAL:          true,
		BusyTimeout:  defaultBusyTimeout,
		MaxOpenConns: defaultMaxOpenConns,
	}
}

// dsn encodes the pragmas into the connection string so that every pooled
// connection gets them, not just the first.
func (o Options) dsn() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeout))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if o.WAL {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	// Writers take the lock up front so insert-then-prune never upgrades
	// a read lock mid-transaction.
	q.Set("_txlock", "immediate")
	return "file:" + o.Path + "?" + q.Encode()
}

// Open opens (or creates) the database described by opts, applies pending
// migrations and returns a Store. The caller must Close it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite: path must not be empty")
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", opts.dsn())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", opts.Path, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", opts.Path, err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db, opts.Path), nil
}
