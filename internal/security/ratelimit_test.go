package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ChatPerMin: 3})

	for i := range 3 {
		if err := rl.Allow(KindChat, "10.0.0.1"); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}
	if err := rl.Allow(KindChat, "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ChatPerMin: 1})

	if err := rl.Allow(KindChat, "a"); err != nil {
		t.Fatalf("first client: %v", err)
	}
	if err := rl.Allow(KindChat, "b"); err != nil {
		t.Fatalf("second client should have its own bucket: %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{AdminPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindAdmin, "c")
	_ = rl.Allow(KindAdmin, "c")
	if err := rl.Allow(KindAdmin, "c"); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow(KindAdmin, "c"); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_Blocked(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthFailuresPerMin: 2})

	if rl.Blocked(KindAuthFailure, "x") {
		t.Fatal("fresh client should not be blocked")
	}
	_ = rl.Allow(KindAuthFailure, "x")
	if rl.Blocked(KindAuthFailure, "x") {
		t.Fatal("one failure should not block")
	}
	_ = rl.Allow(KindAuthFailure, "x")
	if !rl.Blocked(KindAuthFailure, "x") {
		t.Fatal("expected client to be blocked at the limit")
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if err := rl.Allow("unknown", "x"); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
	if rl.Blocked("unknown", "x") {
		t.Fatal("unknown kind should never block")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	want := rateLimitConfigDefaults()
	if rl.limits[KindChat] != want.ChatPerMin {
		t.Errorf("chat limit = %d, want %d", rl.limits[KindChat], want.ChatPerMin)
	}
	if rl.limits[KindAuthFailure] != want.AuthFailuresPerMin {
		t.Errorf("auth limit = %d, want %d", rl.limits[KindAuthFailure], want.AuthFailuresPerMin)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindChat, "a")
	_ = rl.Allow(KindChat, "b")
	now = now.Add(2 * time.Minute)
	_ = rl.Allow(KindChat, "c")

	if removed := rl.Sweep(); removed != 2 {
		t.Fatalf("Sweep() removed %d, want 2", removed)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ChatPerMin: 50})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Go(func() {
			if rl.Allow(KindChat, "same") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("allowed = %d, want 50", allowed)
	}
}
