// Package memorytest provides test helpers for memory backends: a shared
// contract suite every memory.Store must pass, and a failing store for
// exercising degradation paths.
package memorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/membot/internal/memory"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) memory.Store

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(i int) time.Time { return base.Add(time.Duration(i) * time.Minute) }

func turn(p memory.Partition, i int) memory.Entry {
	return memory.Entry{
		UserID:        p.UserID,
		ChannelID:     p.ChannelID,
		GuildID:       p.GuildID,
		UserMessage:   fmt.Sprintf("message %d", i),
		BotResponse:   fmt.Sprintf("reply %d", i),
		UserName:      "Alice",
		CreatedAt:     at(i),
		Type:          memory.EntryConversation,
		Importance:    memory.DefaultEntryImportance,
		SubjectUserID: p.UserID,
	}
}

func fact(userID, guildID, factType, value string, i int) memory.Fact {
	return memory.Fact{
		UserID:     userID,
		GuildID:    guildID,
		FactType:   factType,
		Value:      value,
		Confidence: 8,
		CreatedAt:  at(i),
	}
}

// RunStoreTests runs the backend contract against stores built by newStore.
func RunStoreTests(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("EntryRetentionIsPerPartition", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)
		a := memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}
		b := memory.Partition{UserID: "u1", ChannelID: "c2", GuildID: "g1"}

		for i := range 3 {
			mustInsertEntry(t, s, turn(b, i), 10)
		}
		for i := range 10 {
			mustInsertEntry(t, s, turn(a, 10+i), 4)
		}

		got, err := s.RecentEntries(ctx, a, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 4 {
			t.Fatalf("partition a holds %d entries, want 4", len(got))
		}
		for i, e := range got {
			want := fmt.Sprintf("message %d", 19-i)
			if e.UserMessage != want {
				t.Errorf("entry %d = %q, want %q (newest first)", i, e.UserMessage, want)
			}
		}

		other, err := s.RecentEntries(ctx, b, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(other) != 3 {
			t.Errorf("partition b holds %d entries, want 3 (untouched by a's eviction)", len(other))
		}
	})

	t.Run("InsertedEntrySurvivesItsOwnPrune", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)
		p := memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}

		mustInsertEntry(t, s, turn(p, 5), 1)
		// Older timestamp than the stored row: clamped, then kept.
		stored, evicted, err := s.InsertEntry(ctx, turn(p, 1), 1)
		if err != nil {
			t.Fatal(err)
		}
		if evicted != 1 {
			t.Errorf("evicted = %d, want 1", evicted)
		}
		if stored.CreatedAt.Before(at(5)) {
			t.Errorf("CreatedAt = %v, want clamped to >= %v", stored.CreatedAt, at(5))
		}
		got, err := s.RecentEntries(ctx, p, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != stored.ID {
			t.Fatalf("surviving entries = %+v, want only the inserted row %d", got, stored.ID)
		}
	})

	t.Run("EqualTimestampsEvictByInsertionOrder", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)
		p := memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}

		var ids []int64
		for i := range 5 {
			e := turn(p, 0)
			e.UserMessage = fmt.Sprintf("same time %d", i)
			stored := mustInsertEntry(t, s, e, 3)
			ids = append(ids, stored.ID)
		}
		got, err := s.RecentEntries(ctx, p, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d entries, want 3", len(got))
		}
		for i, e := range got {
			if e.ID != ids[4-i] {
				t.Errorf("entry %d id = %d, want %d", i, e.ID, ids[4-i])
			}
		}
	})

	t.Run("FactRetentionAndRoundTrip", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		for i := range 6 {
			if _, _, err := s.InsertFact(ctx, fact("u1", "g1", "hobby", fmt.Sprintf("hobby %d", i), i), memory.FactLimits{MaxFacts: 3}); err != nil {
				t.Fatal(err)
			}
		}
		if _, _, err := s.InsertFact(ctx, fact("u1", "g2", "job", "baker", 0), memory.FactLimits{MaxFacts: 3}); err != nil {
			t.Fatal(err)
		}

		got, err := s.RecentFacts(ctx, "u1", "g1", 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d facts, want 3", len(got))
		}
		if got[0].Value != "hobby 5" || got[2].Value != "hobby 3" {
			t.Errorf("facts = [%s .. %s], want [hobby 5 .. hobby 3]", got[0].Value, got[2].Value)
		}
		f := got[0]
		if f.UserID != "u1" || f.GuildID != "g1" || f.FactType != "hobby" || f.Confidence != 8 {
			t.Errorf("round trip mismatch: %+v", f)
		}

		other, err := s.RecentFacts(ctx, "u1", "g2", 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(other) != 1 {
			t.Errorf("guild g2 facts = %d, want 1", len(other))
		}
	})

	t.Run("PreferenceCap", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)
		limits := memory.FactLimits{MaxFacts: 10, MaxPreferences: 2}

		for i := range 4 {
			if _, _, err := s.InsertFact(ctx, fact("u1", "g1", memory.FactTypePreference, fmt.Sprintf("pref %d", i), i), limits); err != nil {
				t.Fatal(err)
			}
		}
		if _, _, err := s.InsertFact(ctx, fact("u1", "g1", "job", "pilot", 10), limits); err != nil {
			t.Fatal(err)
		}

		items, total, err := s.ListFacts(ctx, memory.FactQuery{UserID: "u1", FactType: memory.FactTypePreference})
		if err != nil {
			t.Fatal(err)
		}
		if total != 2 || len(items) != 2 {
			t.Fatalf("preferences = %d (total %d), want 2", len(items), total)
		}
		if items[0].Value != "pref 3" || items[1].Value != "pref 2" {
			t.Errorf("kept preferences = %s, %s", items[0].Value, items[1].Value)
		}
	})

	t.Run("ListingFiltersAndPagination", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		for i := range 7 {
			if _, _, err := s.InsertFact(ctx, fact("u1", "g1", "hobby", fmt.Sprintf("v%d", i), i), memory.FactLimits{}); err != nil {
				t.Fatal(err)
			}
		}
		if _, _, err := s.InsertFact(ctx, fact("u2", "g2", "job", "x", 0), memory.FactLimits{}); err != nil {
			t.Fatal(err)
		}

		items, total, err := s.ListFacts(ctx, memory.FactQuery{GuildID: "g1", Window: memory.Window{Page: 2, PageSize: 3}})
		if err != nil {
			t.Fatal(err)
		}
		if total != 7 {
			t.Errorf("total = %d, want 7", total)
		}
		if len(items) != 3 || items[0].Value != "v3" {
			t.Errorf("page 2 = %+v, want v3, v2, v1", items)
		}

		all, total, err := s.ListFacts(ctx, memory.FactQuery{})
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 8 || total != 8 {
			t.Errorf("unfiltered listing = %d (total %d), want 8", len(all), total)
		}

		p := memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}
		mustInsertEntry(t, s, turn(p, 1), 10)
		pref := turn(p, 2)
		pref.Type = memory.EntryPreference
		mustInsertEntry(t, s, pref, 10)

		entries, total, err := s.ListEntries(ctx, memory.EntryQuery{ChannelID: "c1", Type: memory.EntryPreference})
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 || len(entries) != 1 || entries[0].Type != memory.EntryPreference {
			t.Errorf("typed entry listing = %+v (total %d)", entries, total)
		}
	})

	t.Run("DeleteByID", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		f, _, err := s.InsertFact(ctx, fact("u1", "g1", "job", "pilot", 0), memory.FactLimits{})
		if err != nil {
			t.Fatal(err)
		}
		if ok, err := s.DeleteFact(ctx, f.ID); err != nil || !ok {
			t.Fatalf("DeleteFact = %v, %v; want true", ok, err)
		}
		if ok, err := s.DeleteFact(ctx, f.ID); err != nil || ok {
			t.Fatalf("second DeleteFact = %v, %v; want false", ok, err)
		}

		e := mustInsertEntry(t, s, turn(memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}, 0), 5)
		if ok, err := s.DeleteEntry(ctx, e.ID); err != nil || !ok {
			t.Fatalf("DeleteEntry = %v, %v; want true", ok, err)
		}
		if ok, err := s.DeleteEntry(ctx, 999999); err != nil || ok {
			t.Fatalf("DeleteEntry(missing) = %v, %v; want false", ok, err)
		}
	})

	t.Run("ClearUser", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		for i := range 3 {
			if _, _, err := s.InsertFact(ctx, fact("u1", "g1", "hobby", "x", i), memory.FactLimits{}); err != nil {
				t.Fatal(err)
			}
			mustInsertEntry(t, s, turn(memory.Partition{UserID: "u1", ChannelID: fmt.Sprintf("c%d", i), GuildID: "g1"}, i), 5)
		}
		if _, _, err := s.InsertFact(ctx, fact("u2", "g1", "hobby", "kept", 0), memory.FactLimits{}); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.InsertFact(ctx, fact("u1", "g2", "hobby", "kept", 0), memory.FactLimits{}); err != nil {
			t.Fatal(err)
		}

		removed, err := s.ClearUser(ctx, "u1", "g1")
		if err != nil {
			t.Fatal(err)
		}
		if removed != 6 {
			t.Errorf("removed = %d, want 6", removed)
		}

		facts, err := s.RecentFacts(ctx, "u1", "g1", 100)
		if err != nil {
			t.Fatal(err)
		}
		entries, _, err := s.ListEntries(ctx, memory.EntryQuery{GuildID: "g1", UserID: "u1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(facts) != 0 || len(entries) != 0 {
			t.Errorf("after clear: %d facts, %d entries; want none", len(facts), len(entries))
		}

		_, total, err := s.ListFacts(ctx, memory.FactQuery{})
		if err != nil {
			t.Fatal(err)
		}
		if total != 2 {
			t.Errorf("other partitions' facts = %d, want 2", total)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		if _, _, err := s.InsertFact(ctx, fact("u1", "g1", "job", "pilot", 0), memory.FactLimits{}); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.InsertFact(ctx, fact("u2", "g1", "hobby", "chess", 1), memory.FactLimits{}); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.InsertFact(ctx, fact("u3", "g2", "hobby", "golf", 2), memory.FactLimits{}); err != nil {
			t.Fatal(err)
		}
		mustInsertEntry(t, s, turn(memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}, 3), 5)
		mustInsertEntry(t, s, turn(memory.Partition{UserID: "u4", ChannelID: "c1", GuildID: "g1"}, 4), 5)

		st, err := s.Stats(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if st.TotalFacts != 2 || st.TotalMemories != 2 || st.UniqueUsers != 3 {
			t.Errorf("g1 stats = %+v, want 2 facts, 2 memories, 3 users", st)
		}
		if st.FactsByType["job"] != 1 || st.FactsByType["hobby"] != 1 {
			t.Errorf("FactsByType = %v", st.FactsByType)
		}
		if st.EntriesByType[string(memory.EntryConversation)] != 2 {
			t.Errorf("EntriesByType = %v", st.EntriesByType)
		}
		if !st.OldestEntry.Equal(at(3)) || !st.NewestEntry.Equal(at(4)) {
			t.Errorf("entry range = %v .. %v, want %v .. %v", st.OldestEntry, st.NewestEntry, at(3), at(4))
		}

		all, err := s.Stats(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if all.TotalFacts != 3 || all.UniqueUsers != 4 {
			t.Errorf("global stats = %+v, want 3 facts, 4 users", all)
		}
	})

	t.Run("PruneBefore", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		for i := range 4 {
			if _, _, err := s.InsertFact(ctx, fact(fmt.Sprintf("u%d", i), "g1", "job", "x", i*10), memory.FactLimits{}); err != nil {
				t.Fatal(err)
			}
			mustInsertEntry(t, s, turn(memory.Partition{UserID: fmt.Sprintf("u%d", i), ChannelID: "c1", GuildID: "g1"}, i*10), 5)
		}

		res, err := s.PruneBefore(ctx, at(15))
		if err != nil {
			t.Fatal(err)
		}
		if res.Facts != 2 || res.Entries != 2 {
			t.Errorf("PruneBefore = %+v, want 2 facts and 2 entries", res)
		}
	})

	t.Run("ConcurrentPartitions", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStore(t)

		var wg sync.WaitGroup
		for u := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p := memory.Partition{UserID: fmt.Sprintf("u%d", u), ChannelID: "c1", GuildID: "g1"}
				for i := range 15 {
					if _, _, err := s.InsertEntry(ctx, turn(p, i), 5); err != nil {
						t.Errorf("InsertEntry: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		for u := range 4 {
			p := memory.Partition{UserID: fmt.Sprintf("u%d", u), ChannelID: "c1", GuildID: "g1"}
			got, err := s.RecentEntries(ctx, p, 100)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 5 {
				t.Errorf("partition %s holds %d entries, want 5", p.UserID, len(got))
			}
		}
	})
}

func mustInsertEntry(t *testing.T, s memory.Store, e memory.Entry, keep int) memory.Entry {
	t.Helper()
	stored, _, err := s.InsertEntry(context.Background(), e, keep)
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	return stored
}
