package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds used by the gateway.
const (
	KindAuthFailure = "auth_failure"
	KindChat        = "chat"
	KindAdmin       = "admin"
)

// RateLimitConfig holds per-client limits, all per minute.
type RateLimitConfig struct {
	AuthFailuresPerMin int `yaml:"auth_failures_per_min"`
	ChatPerMin         int `yaml:"chat_per_min"`
	AdminPerMin        int `yaml:"admin_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		AuthFailuresPerMin: 10,
		ChatPerMin:         30,
		AdminPerMin:        120,
	}
}

// RateLimiter implements sliding window rate limiting. Each (kind, client)
// pair gets its own bucket of recent event timestamps.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	buckets map[bucketKey]*bucket
	window  time.Duration
	now     func() time.Time
}

type bucketKey struct {
	kind   string
	client string
}

type bucket struct {
	events []time.Time
}

// NewRateLimiter creates a rate limiter. Zero fields take defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.AuthFailuresPerMin <= 0 {
		cfg.AuthFailuresPerMin = defaults.AuthFailuresPerMin
	}
	if cfg.ChatPerMin <= 0 {
		cfg.ChatPerMin = defaults.ChatPerMin
	}
	if cfg.AdminPerMin <= 0 {
		cfg.AdminPerMin = defaults.AdminPerMin
	}

	return &RateLimiter{
		limits: map[string]int{
			KindAuthFailure: cfg.AuthFailuresPerMin,
			KindChat:        cfg.ChatPerMin,
			KindAdmin:       cfg.AdminPerMin,
		},
		buckets: make(map[bucketKey]*bucket),
		window:  time.Minute,
		now:     time.Now,
	}
}

// Allow records one event of kind for client and reports ErrRateLimited
// when the client is over its limit. Unknown kinds are never limited.
func (rl *RateLimiter) Allow(kind, client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	key := bucketKey{kind: kind, client: client}
	b := rl.buckets[key]
	if b == nil {
		b = &bucket{}
		rl.buckets[key] = b
	}
	b.evict(now.Add(-rl.window))

	if len(b.events) >= limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// Blocked reports whether client has exhausted kind without recording an
// event. The gateway uses it to refuse clients with too many failed logins
// before checking their credentials.
func (rl *RateLimiter) Blocked(kind, client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[kind]
	if !ok {
		return false
	}
	b := rl.buckets[bucketKey{kind: kind, client: client}]
	if b == nil {
		return false
	}
	b.evict(rl.now().Add(-rl.window))
	return len(b.events) >= limit
}

// Sweep drops empty buckets. Called periodically so idle clients do not
// accumulate.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	removed := 0
	for key, b := range rl.buckets {
		b.evict(cutoff)
		if len(b.events) == 0 {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// evict removes events older than cutoff. Events are chronological.
func (b *bucket) evict(cutoff time.Time) {
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
