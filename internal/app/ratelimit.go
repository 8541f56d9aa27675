/**
 * @description
 * Fixed-window rate limiting. Two instances guard the system: a coarse global
 * counter in front of database creation, and a per-route counter
 * (method+client IP+path) in front of individual endpoints. Both share this
 * interface; the Redis implementation is the shared-store variant, the memory
 * implementation serves single-instance deployments and tests.
 *
 * Fixed windows are intentional: burst-at-boundary behavior is acceptable for
 * an abuse guard, and the counter needs nothing more than atomic
 * increment-with-expiry.
 */
package app

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// RateLimiter decides whether a request identified by (scope, subject) is
// admitted within the current fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (allowed bool, retryAfterSeconds int, err error)
}

// RateLimitedError is returned by operations rejected by a rate limiter.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", e.RetryAfterSeconds)
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

// memorySweepInterval bounds how often expired windows are evicted. The
// per-route keyspace includes the client IP, which a caller behind no proxy
// can vary freely, so expired entries must not accumulate forever.
const memorySweepInterval = time.Minute

// MemoryRateLimiter is the in-process fixed-window limiter. It never fails:
// there is no backing store to lose.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*fixedWindow
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryRateLimiter creates an in-process limiter.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// ConsumeRateLimit implements the fixed-window check: a fresh or expired
// window starts at zero, counts below the limit are incremented and admitted,
// counts at the limit are rejected without mutating state.
func (m *MemoryRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, int, error) {
	if limit <= 0 || window <= 0 {
		return true, 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepExpired(now)

	key := scope + ":" + subject
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}

	if w.count < limit {
		w.count++
		return true, 0, nil
	}

	retryAfter := int(math.Ceil(w.resetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

// sweepExpired opportunistically drops windows whose reset time has passed.
// Called with the mutex held.
func (m *MemoryRateLimiter) sweepExpired(now time.Time) {
	if now.Sub(m.lastSweep) < memorySweepInterval {
		return
	}
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
	m.lastSweep = now
}
