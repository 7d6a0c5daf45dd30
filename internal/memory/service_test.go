package memory_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/memory/memorytest"
	"github.com/flemzord/membot/internal/settings"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingObserver struct {
	mu        sync.Mutex
	ops       map[string]int
	failures  map[string]int
	evictions map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{ops: map[string]int{}, failures: map[string]int{}, evictions: map[string]int{}}
}

func (o *recordingObserver) ObserveMemoryOp(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[op]++
	if err != nil {
		o.failures[op]++
	}
}

func (o *recordingObserver) ObserveEviction(kind string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evictions[kind] += n
}

func testSettings(mutate func(*settings.Memory)) settings.Static {
	s := settings.Default()
	if mutate != nil {
		mutate(&s.Memory)
	}
	return settings.Static(s)
}

func newTestService(t *testing.T, mutate func(*settings.Memory), opts ...memory.Option) *memory.Service {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]memory.Option{memory.WithClock(clock.Now)}, opts...)
	return memory.NewService(memory.NewInMemoryStore(), testSettings(mutate), opts...)
}

func TestService_RecordTurnRespectsContextMessageCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	obs := newRecordingObserver()
	svc := newTestService(t, func(m *settings.Memory) { m.ContextMessageCount = 3 }, memory.WithObserver(obs))
	p := memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}

	for i := range 8 {
		res := svc.RecordTurn(ctx, memory.Turn{
			UserID: p.UserID, ChannelID: p.ChannelID, GuildID: p.GuildID,
			UserMessage: fmt.Sprintf("m%d", i), BotResponse: "ok", UserName: "Alice",
		})
		if !res.OK {
			t.Fatalf("RecordTurn %d failed: %v", i, res.Err)
		}
		if n := len(svc.RecentTurns(ctx, p, 100)); n > 3 {
			t.Fatalf("after turn %d partition holds %d entries, cap is 3", i, n)
		}
	}

	got := svc.RecentTurns(ctx, p, 100)
	if len(got) != 3 || got[0].UserMessage != "m7" || got[2].UserMessage != "m5" {
		t.Errorf("RecentTurns = %+v, want m7, m6, m5", got)
	}
	if got[0].Type != memory.EntryConversation || got[0].Importance != memory.DefaultEntryImportance || got[0].SubjectUserID != "u1" {
		t.Errorf("defaults not applied: %+v", got[0])
	}
	if obs.evictions["entry"] != 5 {
		t.Errorf("entry evictions = %d, want 5", obs.evictions["entry"])
	}
}

func TestService_RecordFactValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	valid := memory.FactInput{UserID: "u1", GuildID: "g1", FactType: "job", Value: "pilot", Confidence: 7}

	tests := []struct {
		name   string
		mutate func(*memory.FactInput)
	}{
		{"empty user", func(in *memory.FactInput) { in.UserID = "" }},
		{"empty guild", func(in *memory.FactInput) { in.GuildID = " " }},
		{"empty type", func(in *memory.FactInput) { in.FactType = "" }},
		{"empty value", func(in *memory.FactInput) { in.Value = "\t" }},
		{"confidence too high", func(in *memory.FactInput) { in.Confidence = 10.5 }},
		{"confidence negative", func(in *memory.FactInput) { in.Confidence = -1 }},
		{"confidence NaN", func(in *memory.FactInput) { in.Confidence = math.NaN() }},
		{"confidence infinite", func(in *memory.FactInput) { in.Confidence = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := valid
			tt.mutate(&in)
			res := svc.RecordFact(context.Background(), in)
			if res.OK || !errors.Is(res.Err, memory.ErrInvalidInput) {
				t.Errorf("RecordFact(%+v) = %+v, want ErrInvalidInput", in, res)
			}
		})
	}
}

func TestService_RecordFactRoundTripAndCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, func(m *settings.Memory) { m.MaxUserFacts = 2 })

	for _, v := range []string{"baker", "pilot", "  Chef  "} {
		if res := svc.RecordFact(ctx, memory.FactInput{UserID: "u1", GuildID: "g1", FactType: " Job ", Value: v, Confidence: 6}); !res.OK {
			t.Fatalf("RecordFact(%q) failed: %v", v, res.Err)
		}
	}

	got := svc.GetFacts(ctx, "u1", "g1", 100)
	if len(got) != 2 {
		t.Fatalf("GetFacts returned %d facts, want 2", len(got))
	}
	if got[0].Value != "Chef" || got[0].FactType != "job" || got[0].UserID != "u1" || got[0].GuildID != "g1" {
		t.Errorf("newest fact = %+v, want normalized job/Chef", got[0])
	}
	if got[1].Value != "pilot" {
		t.Errorf("second fact = %q, want pilot", got[1].Value)
	}
	if got := svc.GetFacts(ctx, "u1", "g1", 0); got != nil {
		t.Errorf("GetFacts(limit 0) = %+v, want nil", got)
	}
}

func TestService_ClearUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, nil)

	svc.RecordFact(ctx, memory.FactInput{UserID: "u1", GuildID: "g1", FactType: "job", Value: "pilot", Confidence: 5})
	svc.RecordTurn(ctx, memory.Turn{UserID: "u1", ChannelID: "c1", GuildID: "g1", UserMessage: "hi", BotResponse: "hello"})
	svc.RecordTurn(ctx, memory.Turn{UserID: "u2", ChannelID: "c1", GuildID: "g1", UserMessage: "yo", BotResponse: "hey"})

	if res := svc.ClearUser(ctx, "u1", "g1"); !res.OK {
		t.Fatalf("ClearUser failed: %v", res.Err)
	}
	if got := svc.GetFacts(ctx, "u1", "g1", 100); len(got) != 0 {
		t.Errorf("facts after clear = %+v", got)
	}
	for _, e := range svc.GetAllEntries(ctx, "g1") {
		if e.UserID == "u1" {
			t.Errorf("entry for cleared user survived: %+v", e)
		}
	}
	if n := len(svc.GetAllEntries(ctx, "g1")); n != 1 {
		t.Errorf("remaining entries = %d, want 1", n)
	}

	if res := svc.ClearUser(ctx, "", "g1"); !errors.Is(res.Err, memory.ErrInvalidInput) {
		t.Errorf("ClearUser with empty user = %+v, want ErrInvalidInput", res)
	}
}

func TestService_DeleteReportsNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, nil)

	f, res := svc.AddFact(ctx, memory.FactInput{UserID: "u1", GuildID: "g1", FactType: "job", Value: "pilot", Confidence: 5})
	if !res.OK {
		t.Fatal(res.Err)
	}
	if res := svc.DeleteFact(ctx, f.ID); !res.OK {
		t.Errorf("DeleteFact = %+v, want OK", res)
	}
	if res := svc.DeleteFact(ctx, f.ID); res.OK || !errors.Is(res.Err, memory.ErrNotFound) {
		t.Errorf("second DeleteFact = %+v, want ErrNotFound", res)
	}
	if res := svc.DeleteEntry(ctx, 12345); res.OK || !errors.Is(res.Err, memory.ErrNotFound) {
		t.Errorf("DeleteEntry(missing) = %+v, want ErrNotFound", res)
	}
}

func TestService_ListingAndStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, nil)
	for i := range 5 {
		svc.RecordFact(ctx, memory.FactInput{UserID: "u1", GuildID: "g1", FactType: "hobby", Value: fmt.Sprintf("h%d", i), Confidence: 5})
	}

	page, res := svc.ListFacts(ctx, memory.FactQuery{GuildID: "g1", Window: memory.NewWindow(2, 2)})
	if !res.OK {
		t.Fatal(res.Err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Items[0].Value != "h2" {
		t.Errorf("page = %+v", page)
	}

	empty, res := svc.ListEntries(ctx, memory.EntryQuery{GuildID: "nope"})
	if !res.OK || empty.Items == nil || len(empty.Items) != 0 {
		t.Errorf("empty listing = %+v, %+v; want non-nil empty items", empty, res)
	}

	if _, res := svc.ListEntries(ctx, memory.EntryQuery{Type: "bogus"}); !errors.Is(res.Err, memory.ErrInvalidInput) {
		t.Errorf("ListEntries(bogus type) = %+v, want ErrInvalidInput", res)
	}

	st, res := svc.Stats(ctx, "g1")
	if !res.OK || st.TotalFacts != 5 || st.UniqueUsers != 1 {
		t.Errorf("Stats = %+v, %+v", st, res)
	}
}

func TestService_PruneExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewInMemoryStore()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := memory.Entry{UserID: "u1", ChannelID: "c1", GuildID: "g1", CreatedAt: now.AddDate(0, 0, -40), Type: memory.EntryConversation}
	if _, _, err := store.InsertEntry(ctx, old, 10); err != nil {
		t.Fatal(err)
	}
	oldFact := memory.Fact{UserID: "u1", GuildID: "g1", FactType: "job", Value: "x", CreatedAt: now.AddDate(0, 0, -40)}
	if _, _, err := store.InsertFact(ctx, oldFact, memory.FactLimits{}); err != nil {
		t.Fatal(err)
	}

	svc := memory.NewService(store, testSettings(nil), memory.WithClock(func() time.Time { return now }))
	svc.RecordTurn(ctx, memory.Turn{UserID: "u2", ChannelID: "c1", GuildID: "g1", UserMessage: "new", BotResponse: "ok"})

	res, r := svc.PruneExpired(ctx, 30*24*time.Hour)
	if !r.OK {
		t.Fatal(r.Err)
	}
	if res.Entries != 1 || res.Facts != 1 {
		t.Errorf("PruneExpired = %+v, want 1 entry and 1 fact", res)
	}
	if n := len(svc.GetAllEntries(ctx, "")); n != 1 {
		t.Errorf("entries after prune = %d, want 1", n)
	}

	if _, r := svc.PruneExpired(ctx, 0); !errors.Is(r.Err, memory.ErrInvalidInput) {
		t.Errorf("PruneExpired(0) = %+v, want ErrInvalidInput", r)
	}
}

func TestService_NilStoreIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := memory.NewService(nil, testSettings(nil), memory.WithLogger(slog.New(slog.DiscardHandler)))

	if svc.Available() {
		t.Fatal("Available() = true for nil store")
	}
	if res := svc.RecordTurn(ctx, memory.Turn{UserID: "u", ChannelID: "c", GuildID: "g"}); res.OK || !errors.Is(res.Err, memory.ErrUnavailable) {
		t.Errorf("RecordTurn = %+v, want ErrUnavailable", res)
	}
	if res := svc.RecordFact(ctx, memory.FactInput{UserID: "u", GuildID: "g", FactType: "t", Value: "v"}); !errors.Is(res.Err, memory.ErrUnavailable) {
		t.Errorf("RecordFact = %+v, want ErrUnavailable", res)
	}
	if got := svc.GetFacts(ctx, "u", "g", 10); got != nil {
		t.Errorf("GetFacts = %+v, want nil", got)
	}
	if got := svc.GetAllFacts(ctx, ""); len(got) != 0 {
		t.Errorf("GetAllFacts = %+v, want empty", got)
	}
	if st, _ := svc.Stats(ctx, ""); st.TotalFacts != 0 || st.FactsByType == nil {
		t.Errorf("Stats = %+v, want zero with non-nil maps", st)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestService_StorageErrorsAreLoggedAndSwallowed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("disk on fire")
	obs := newRecordingObserver()
	svc := memory.NewService(&memorytest.FailingStore{Err: boom}, testSettings(nil),
		memory.WithLogger(logger), memory.WithObserver(obs))

	ctx := context.Background()
	res := svc.RecordTurn(ctx, memory.Turn{UserID: "u", ChannelID: "c", GuildID: "g", UserMessage: "hi"})
	if res.OK || !errors.Is(res.Err, boom) {
		t.Errorf("RecordTurn = %+v, want wrapped storage error", res)
	}
	if got := svc.RecentTurns(ctx, memory.Partition{UserID: "u", ChannelID: "c", GuildID: "g"}, 5); got != nil {
		t.Errorf("RecentTurns = %+v, want nil", got)
	}
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "disk on fire") {
		t.Errorf("expected WARN log with cause, got: %s", buf.String())
	}
	if obs.failures["record_entry"] != 1 || obs.failures["recent_turns"] != 1 {
		t.Errorf("observer failures = %v", obs.failures)
	}
}

func TestService_TimeoutFailsFast(t *testing.T) {
	t.Parallel()

	svc := memory.NewService(&memorytest.FailingStore{Block: true}, testSettings(nil),
		memory.WithTimeout(20*time.Millisecond), memory.WithLogger(slog.New(slog.DiscardHandler)))

	start := time.Now()
	res := svc.RecordTurn(context.Background(), memory.Turn{UserID: "u", ChannelID: "c", GuildID: "g"})
	if res.OK || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("RecordTurn = %+v, want deadline exceeded", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("RecordTurn took %v, want bounded by timeout", elapsed)
	}
}

func TestWindow(t *testing.T) {
	t.Parallel()

	w := memory.NewWindow(0, 0)
	if w.Page != 1 || w.PageSize != memory.DefaultPageSize {
		t.Errorf("NewWindow(0, 0) = %+v", w)
	}
	if w := memory.NewWindow(3, 10000); w.PageSize != memory.MaxPageSize {
		t.Errorf("page size not clamped: %+v", w)
	}
	if limit, offset := (memory.Window{Page: 3, PageSize: 20}).LimitOffset(); limit != 20 || offset != 40 {
		t.Errorf("LimitOffset = %d, %d; want 20, 40", limit, offset)
	}
	if limit, _ := (memory.Window{}).LimitOffset(); limit != 0 {
		t.Errorf("zero window limit = %d, want 0", limit)
	}
}
