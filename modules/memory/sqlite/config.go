package sqlite

import "fmt"

const (
	defaultBusyTimeout  = 5000
	defaultMaxOpenConns = 4
	defaultDBFile       = "memory.db"
)

// Config holds the SQLite memory module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/memory.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// MaxOpenConns bounds the connection pool. Defaults to 4.
	MaxOpenConns int `yaml:"max_open_conns"`

	// Required makes an open failure fatal at startup. By default the bot
	// starts without memory instead.
	Required bool `yaml:"required"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("sqlite: max_open_conns must be non-negative, got %d", c.MaxOpenConns)
	}
	return nil
}

// Options returns the open options described by the configuration.
func (c *Config) Options() Options {
	return Options{
		Path:         c.Path,
		WAL:          c.walEnabled(),
		BusyTimeout:  c.BusyTimeout,
		MaxOpenConns: c.MaxOpenConns,
	}
}
