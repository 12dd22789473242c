package sanitize

import (
	"sync"
	"time"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
)

// RateLimiter is a per-key sliding-window limiter: at most maxOps operations
// per key within any window-long interval.
type RateLimiter struct {
	maxOps int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewRateLimiter creates a limiter allowing maxOps per window per key.
func NewRateLimiter(maxOps int, window time.Duration) *RateLimiter {
	if maxOps <= 0 {
		maxOps = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		maxOps: maxOps,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records an operation for key if the window has room. When it does
// not, it returns false and how long until the oldest entry expires.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	hits := r.prune(key, now)
	if len(hits) >= r.maxOps {
		return false, hits[0].Add(r.window).Sub(now)
	}
	r.hits[key] = append(hits, now)
	return true, 0
}

// Check is Allow returning a RATE_LIMITED error when denied.
func (r *RateLimiter) Check(key string) error {
	if ok, retryAfter := r.Allow(key); !ok {
		return wterrors.NewRateLimit(key, retryAfter)
	}
	return nil
}

// Remaining returns how many operations key may still perform in the window.
func (r *RateLimiter) Remaining(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxOps - len(r.prune(key, r.now()))
}

// Reset forgets all recorded operations for key.
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hits, key)
}

// prune drops timestamps that fell out of the window. Caller holds mu.
func (r *RateLimiter) prune(key string, now time.Time) []time.Time {
	hits := r.hits[key]
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(r.hits, key)
		return nil
	}
	r.hits[key] = hits
	return hits
}
