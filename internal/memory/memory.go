// Package memory stores what the bot remembers about its users: durable
// facts and recent conversation turns. Backends implement Store; the rest
// of the system talks to a Service, which enforces retention caps, applies
// timeouts and degrades to a no-op when no backend is available.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrUnavailable means no storage backend could be opened.
	ErrUnavailable = errors.New("memory: storage unavailable")

	// ErrInvalidInput means a write was rejected before reaching storage.
	ErrInvalidInput = errors.New("memory: invalid input")

	// ErrNotFound means the addressed row does not exist.
	ErrNotFound = errors.New("memory: not found")
)

// Confidence and importance share a 0-10 scale.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// EntryType classifies a memory entry.
type EntryType string

// Entry types.
const (
	EntryConversation EntryType = "conversation"
	EntryFact         EntryType = "fact"
	EntryPreference   EntryType = "preference"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryConversation, EntryFact, EntryPreference:
		return true
	}
	return false
}

// FactTypePreference is the fact type subject to the separate
// MaxPreferences cap.
const FactTypePreference = "preference"

// Fact is a durable statement about a user within a guild.
type Fact struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	GuildID      string    `json:"guild_id"`
	FactType     string    `json:"fact_type"`
	Value        string    `json:"value"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
	ReporterID   string    `json:"reporter_id,omitempty"`
	ReporterName string    `json:"reporter_name,omitempty"`
}

// Entry is one recorded exchange: the user's message and the bot's reply.
type Entry struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	ChannelID     string    `json:"channel_id"`
	GuildID       string    `json:"guild_id"`
	UserMessage   string    `json:"user_message"`
	BotResponse   string    `json:"bot_response"`
	UserName      string    `json:"user_name"`
	CreatedAt     time.Time `json:"created_at"`
	Type          EntryType `json:"type"`
	Importance    float64   `json:"importance"`
	SubjectUserID string    `json:"subject_user_id,omitempty"`
}

// Partition returns the retention partition of the entry.
func (e Entry) Partition() Partition {
	return Partition{UserID: e.UserID, ChannelID: e.ChannelID, GuildID: e.GuildID}
}

// Partition is the (user, channel, guild) key scoping conversation
// retention and retrieval.
type Partition struct {
	UserID    string
	ChannelID string
	GuildID   string
}

// Validate reports an ErrInvalidInput error when any key part is empty.
func (p Partition) Validate() error {
	switch {
	case strings.TrimSpace(p.UserID) == "":
		return fmt.Errorf("%w: user_id must not be empty", ErrInvalidInput)
	case strings.TrimSpace(p.ChannelID) == "":
		return fmt.Errorf("%w: channel_id must not be empty", ErrInvalidInput)
	case strings.TrimSpace(p.GuildID) == "":
		return fmt.Errorf("%w: guild_id must not be empty", ErrInvalidInput)
	}
	return nil
}

// Result reports the outcome of a write or administrative operation.
// Storage failures are carried here instead of being returned as errors
// so that callers on the message path must handle "no memory" explicitly.
type Result struct {
	OK  bool
	Err error
}

// Succeeded is the Result of a successful operation.
func Succeeded() Result { return Result{OK: true} }

// Failed wraps err in a Result.
func Failed(err error) Result { return Result{Err: err} }

// Message returns the human-readable failure, or "" on success.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Page is one page of a listing together with the total number of
// matching rows.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// Pagination defaults for administrative listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Window selects a slice of an ordered listing. A zero PageSize selects
// everything.
type Window struct {
	Page     int
	PageSize int
}

// NewWindow returns a window with the administrative defaults applied:
// page starts at 1 and page size is clamped to [1, MaxPageSize].
func NewWindow(page, pageSize int) Window {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Window{Page: page, PageSize: pageSize}
}

// LimitOffset converts the window to SQL-style bounds. A zero limit means
// no limit.
func (w Window) LimitOffset() (limit, offset int) {
	if w.PageSize <= 0 {
		return 0, 0
	}
	page := max(w.Page, 1)
	return w.PageSize, (page - 1) * w.PageSize
}

// FactQuery filters a fact listing. Empty fields match everything.
type FactQuery struct {
	GuildID  string
	UserID   string
	FactType string
	Window
}

// EntryQuery filters an entry listing. Empty fields match everything.
type EntryQuery struct {
	GuildID   string
	UserID    string
	ChannelID string
	Type      EntryType
	Window
}

// Stats aggregates what is stored, optionally scoped to a guild.
type Stats struct {
	TotalFacts    int            `json:"total_facts"`
	TotalMemories int            `json:"total_memories"`
	UniqueUsers   int            `json:"unique_users"`
	FactsByType   map[string]int `json:"facts_by_type"`
	EntriesByType map[string]int `json:"entries_by_type"`
	OldestEntry   time.Time      `json:"oldest_entry,omitzero"`
	NewestEntry   time.Time      `json:"newest_entry,omitzero"`
}

// PruneResult counts rows removed by a retention sweep.
type PruneResult struct {
	Entries int `json:"entries"`
	Facts   int `json:"facts"`
}
