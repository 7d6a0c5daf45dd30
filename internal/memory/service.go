package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/flemzord/membot/internal/settings"
)

// DefaultTimeout bounds every backend call made by a Service.
const DefaultTimeout = 2 * time.Second

// Observer receives the outcome of every Service operation. It is
// implemented by the telemetry package.
type Observer interface {
	ObserveMemoryOp(op string, err error)
	ObserveEviction(kind string, n int)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used to report storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// Service is the entry point to memory for the rest of the bot. It reads
// retention caps from the settings source on every write, never returns
// storage errors on the message path, and behaves as an empty, write-nothing
// memory when constructed without a Store.
type Service struct {
	store    Store
	settings settings.Source
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	observer Observer
}

// NewService wraps store. A nil store yields a Service on which every
// operation is a no-op.
func NewService(store Store, cfg settings.Source, opts ...Option) *Service {
	s := &Service{
		store:    store,
		settings: cfg,
		logger:   slog.Default(),
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if store == nil {
		s.logger.Warn("memory: no storage backend, memory disabled")
	}
	return s
}

// Available reports whether a storage backend is attached.
func (s *Service) Available() bool {
	return s != nil && s.store != nil
}

// Close closes the underlying store.
func (s *Service) Close() error {
	if !s.Available() {
		return nil
	}
	return s.store.Close()
}

// Turn is one completed exchange to remember.
type Turn struct {
	UserID      string
	ChannelID   string
	GuildID     string
	UserMessage string
	BotResponse string
	UserName    string
}

// RecordTurn stores a conversation turn and trims its partition to the
// configured context message count.
func (s *Service) RecordTurn(ctx context.Context, t Turn) Result {
	_, res := s.RecordEntry(ctx, Entry{
		UserID:      t.UserID,
		ChannelID:   t.ChannelID,
		GuildID:     t.GuildID,
		UserMessage: t.UserMessage,
		BotResponse: t.BotResponse,
		UserName:    t.UserName,
		Type:        EntryConversation,
	})
	return res
}

// RecordEntry stores e with defaults applied (conversation type, neutral
// importance, the speaker as subject) and trims its partition.
func (s *Service) RecordEntry(ctx context.Context, e Entry) (Entry, Result) {
	const op = "record_entry"

	if err := e.Partition().Validate(); err != nil {
		return Entry{}, s.fail(op, err)
	}
	if e.Type == "" {
		e.Type = EntryConversation
	}
	if !e.Type.Valid() {
		return Entry{}, s.fail(op, fmt.Errorf("%w: unknown entry type %q", ErrInvalidInput, e.Type))
	}
	if e.Importance <= 0 {
		e.Importance = DefaultEntryImportance
	}
	if e.Importance > MaxScore {
		return Entry{}, s.fail(op, fmt.Errorf("%w: importance %v out of range [0, 10]", ErrInvalidInput, e.Importance))
	}
	if e.SubjectUserID == "" {
		e.SubjectUserID = e.UserID
	}
	if !s.Available() {
		return Entry{}, s.unavailable(op)
	}

	e.ID = 0
	e.CreatedAt = s.now()
	keep := max(s.settings.Snapshot().Memory.ContextMessageCount, 1)

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	stored, evicted, err := s.store.InsertEntry(ctx, e, keep)
	if err != nil {
		return Entry{}, s.fail(op, err)
	}
	s.evicted("entry", evicted)
	s.succeed(op)
	return stored, Succeeded()
}

// FactInput is a fact to record, before validation.
type FactInput struct {
	UserID       string
	GuildID      string
	FactType     string
	Value        string
	Confidence   float64
	ReporterID   string
	ReporterName string
}

// Validate checks the input and returns an ErrInvalidInput error
// describing the first problem found.
func (in FactInput) Validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return fmt.Errorf("%w: user_id must not be empty", ErrInvalidInput)
	case strings.TrimSpace(in.GuildID) == "":
		return fmt.Errorf("%w: guild_id must not be empty", ErrInvalidInput)
	case strings.TrimSpace(in.FactType) == "":
		return fmt.Errorf("%w: fact_type must not be empty", ErrInvalidInput)
	case strings.TrimSpace(in.Value) == "":
		return fmt.Errorf("%w: value must not be empty", ErrInvalidInput)
	case math.IsNaN(in.Confidence) || in.Confidence < MinScore || in.Confidence > MaxScore:
		return fmt.Errorf("%w: confidence %v out of range [0, 10]", ErrInvalidInput, in.Confidence)
	}
	return nil
}

// RecordFact validates and stores a fact, then enforces the per-user fact
// and preference caps.
func (s *Service) RecordFact(ctx context.Context, in FactInput) Result {
	_, res := s.AddFact(ctx, in)
	return res
}

// AddFact is RecordFact returning the stored fact.
func (s *Service) AddFact(ctx context.Context, in FactInput) (Fact, Result) {
	const op = "record_fact"

	if err := in.Validate(); err != nil {
		return Fact{}, s.fail(op, err)
	}
	if !s.Available() {
		return Fact{}, s.unavailable(op)
	}

	mem := s.settings.Snapshot().Memory
	f := Fact{
		UserID:       in.UserID,
		GuildID:      in.GuildID,
		FactType:     strings.ToLower(strings.TrimSpace(in.FactType)),
		Value:        strings.TrimSpace(in.Value),
		Confidence:   in.Confidence,
		CreatedAt:    s.now(),
		ReporterID:   in.ReporterID,
		ReporterName: in.ReporterName,
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	stored, evicted, err := s.store.InsertFact(ctx, f, FactLimits{
		MaxFacts:       max(mem.MaxUserFacts, 1),
		MaxPreferences: mem.MaxPreferences,
	})
	if err != nil {
		return Fact{}, s.fail(op, err)
	}
	s.evicted("fact", evicted)
	s.succeed(op)
	return stored, Succeeded()
}

// GetFacts returns up to limit facts about userID in guildID, newest
// first. Failures yield an empty result.
func (s *Service) GetFacts(ctx context.Context, userID, guildID string, limit int) []Fact {
	const op = "get_facts"
	if limit <= 0 || !s.Available() {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	facts, err := s.store.RecentFacts(ctx, userID, guildID, limit)
	if err != nil {
		s.fail(op, err)
		return nil
	}
	s.succeed(op)
	return facts
}

// RecentTurns returns up to limit entries of p, newest first. Failures
// yield an empty result.
func (s *Service) RecentTurns(ctx context.Context, p Partition, limit int) []Entry {
	const op = "recent_turns"
	if limit <= 0 || !s.Available() {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entries, err := s.store.RecentEntries(ctx, p, limit)
	if err != nil {
		s.fail(op, err)
		return nil
	}
	s.succeed(op)
	return entries
}

// GetAllFacts returns every fact, newest first, optionally restricted to
// guildID.
func (s *Service) GetAllFacts(ctx context.Context, guildID string) []Fact {
	page, _ := s.ListFacts(ctx, FactQuery{GuildID: guildID})
	return page.Items
}

// GetAllEntries returns every entry, newest first, optionally restricted
// to guildID.
func (s *Service) GetAllEntries(ctx context.Context, guildID string) []Entry {
	page, _ := s.ListEntries(ctx, EntryQuery{GuildID: guildID})
	return page.Items
}

// ListFacts returns one window of the facts matching q.
func (s *Service) ListFacts(ctx context.Context, q FactQuery) (Page[Fact], Result) {
	const op = "list_facts"
	empty := Page[Fact]{Items: []Fact{}}
	if !s.Available() {
		return empty, s.unavailable(op)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	items, total, err := s.store.ListFacts(ctx, q)
	if err != nil {
		return empty, s.fail(op, err)
	}
	if items == nil {
		items = []Fact{}
	}
	s.succeed(op)
	return Page[Fact]{Items: items, Total: total}, Succeeded()
}

// ListEntries returns one window of the entries matching q.
func (s *Service) ListEntries(ctx context.Context, q EntryQuery) (Page[Entry], Result) {
	const op = "list_entries"
	empty := Page[Entry]{Items: []Entry{}}
	if !s.Available() {
		return empty, s.unavailable(op)
	}
	if q.Type != "" && !q.Type.Valid() {
		return empty, s.fail(op, fmt.Errorf("%w: unknown entry type %q", ErrInvalidInput, q.Type))
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	items, total, err := s.store.ListEntries(ctx, q)
	if err != nil {
		return empty, s.fail(op, err)
	}
	if items == nil {
		items = []Entry{}
	}
	s.succeed(op)
	return Page[Entry]{Items: items, Total: total}, Succeeded()
}

// DeleteFact removes a fact. The Result is OK iff a row was removed.
func (s *Service) DeleteFact(ctx context.Context, id int64) Result {
	return s.deleteByID(ctx, "delete_fact", id, s.storeDeleteFact)
}

// DeleteEntry removes an entry. The Result is OK iff a row was removed.
func (s *Service) DeleteEntry(ctx context.Context, id int64) Result {
	return s.deleteByID(ctx, "delete_entry", id, s.storeDeleteEntry)
}

func (s *Service) storeDeleteFact(ctx context.Context, id int64) (bool, error) {
	return s.store.DeleteFact(ctx, id)
}

func (s *Service) storeDeleteEntry(ctx context.Context, id int64) (bool, error) {
	return s.store.DeleteEntry(ctx, id)
}

func (s *Service) deleteByID(ctx context.Context, op string, id int64, del func(context.Context, int64) (bool, error)) Result {
	if !s.Available() {
		return s.unavailable(op)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	removed, err := del(ctx, id)
	if err != nil {
		return s.fail(op, err)
	}
	s.succeed(op)
	if !removed {
		return Failed(fmt.Errorf("%w: id %d", ErrNotFound, id))
	}
	return Succeeded()
}

// ClearUser removes every fact and entry of userID in guildID in one
// transaction.
func (s *Service) ClearUser(ctx context.Context, userID, guildID string) Result {
	const op = "clear_user"
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(guildID) == "" {
		return s.fail(op, fmt.Errorf("%w: user_id and guild_id are required", ErrInvalidInput))
	}
	if !s.Available() {
		return s.unavailable(op)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	removed, err := s.store.ClearUser(ctx, userID, guildID)
	if err != nil {
		return s.fail(op, err)
	}
	s.logger.Info("memory: cleared user", "user_id", userID, "guild_id", guildID, "rows", removed)
	s.succeed(op)
	return Succeeded()
}

// Stats aggregates stored rows, optionally scoped to guildID.
func (s *Service) Stats(ctx context.Context, guildID string) (Stats, Result) {
	const op = "stats"
	empty := Stats{FactsByType: map[string]int{}, EntriesByType: map[string]int{}}
	if !s.Available() {
		return empty, s.unavailable(op)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	st, err := s.store.Stats(ctx, guildID)
	if err != nil {
		return empty, s.fail(op, err)
	}
	s.succeed(op)
	return st, Succeeded()
}

// PruneExpired removes facts and entries older than maxAge. It is the
// only age-based deletion; decay filtering never deletes.
func (s *Service) PruneExpired(ctx context.Context, maxAge time.Duration) (PruneResult, Result) {
	const op = "prune"
	if maxAge <= 0 {
		return PruneResult{}, s.fail(op, fmt.Errorf("%w: max age must be positive", ErrInvalidInput))
	}
	if !s.Available() {
		return PruneResult{}, s.unavailable(op)
	}
	// Sweeps touch many rows; give them a longer budget than single ops.
	ctx, cancel := context.WithTimeout(ctx, 10*s.timeout)
	defer cancel()

	res, err := s.store.PruneBefore(ctx, s.now().Add(-maxAge))
	if err != nil {
		return PruneResult{}, s.fail(op, err)
	}
	s.evicted("expired_entry", res.Entries)
	s.evicted("expired_fact", res.Facts)
	s.succeed(op)
	return res, Succeeded()
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) fail(op string, err error) Result {
	if errors.Is(err, ErrInvalidInput) {
		s.logger.Debug("memory: rejected input", "op", op, "error", err)
	} else {
		err = fmt.Errorf("memory: %s: %w", op, err)
		s.logger.Warn("memory: storage operation failed", "op", op, "error", err)
	}
	if s.observer != nil {
		s.observer.ObserveMemoryOp(op, err)
	}
	return Failed(err)
}

func (s *Service) unavailable(op string) Result {
	if s.observer != nil {
		s.observer.ObserveMemoryOp(op, ErrUnavailable)
	}
	return Failed(ErrUnavailable)
}

func (s *Service) succeed(op string) {
	if s.observer != nil {
		s.observer.ObserveMemoryOp(op, nil)
	}
}

func (s *Service) evicted(kind string, n int) {
	if n > 0 && s.observer != nil {
		s.observer.ObserveEviction(kind, n)
	}
}
