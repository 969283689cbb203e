package resilience

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterStaleThreshold  = 10 * time.Minute
)

// RateLimitError reports a rejected admission along with how long the
// caller should wait before the next token becomes available.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Key, e.RetryAfter)
}

// KeyedLimiter applies a token bucket per key using
// golang.org/x/time/rate. Cleanup of stale entries happens inline
// during Allow calls. Safe for concurrent use.
type KeyedLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

// bucket holds a rate limiter and last-seen time for a single key.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter.
// refill: tokens refilled per second. burst: maximum tokens (and
// initial allowance).
func NewKeyedLimiter(refill float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:     make(map[string]*bucket),
		limit:       rate.Limit(refill),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

// Allow consumes one token for key. A nil return means the call is
// admitted; otherwise a *RateLimitError carries the wait until the
// next token.
func (kl *KeyedLimiter) Allow(key string) error {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := time.Now()

	// Periodic cleanup of stale entries
	if now.Sub(kl.lastCleanup) > limiterCleanupInterval {
		for k, b := range kl.buckets {
			if now.Sub(b.lastSeen) > limiterStaleThreshold {
				delete(kl.buckets, k)
			}
		}
		kl.lastCleanup = now
	}

	b, exists := kl.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.Allow() {
		return nil
	}

	// Reserve to learn the wait, then cancel so the rejected call
	// does not consume the future token.
	res := b.limiter.Reserve()
	retryAfter := res.Delay()
	res.Cancel()

	return &RateLimitError{Key: key, RetryAfter: retryAfter}
}
