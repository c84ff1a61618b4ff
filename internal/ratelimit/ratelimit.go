// Package ratelimit implements a fixed-window request limiter keyed by
// arbitrary strings.
//
// Fixed-window semantics are deliberate: a counter resets at discrete window
// boundaries, so bursts straddling a boundary can admit up to twice the
// nominal limit. That trade-off is accepted for simplicity; the in-process
// map is correct only for single-instance deployments.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Error reports an exceeded limit together with the seconds a caller should
// wait before retrying. It is expected control flow for a busy client, not a
// fault.
type Error struct {
	RetryAfterSeconds int
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

type counter struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed-window counters per key. Safe for concurrent use.
//
// Keys are never reaped; the key space here is bounded (one per active user
// per surface), so expired counters are simply replaced on next use.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewLimiter creates an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Check admits one request for key under the given limit and window, or
// returns *Error when the window's budget is already spent. A fresh counter
// starts whenever none exists or the previous window has elapsed. A rejected
// call does not consume budget.
func (l *Limiter) Check(key string, limit int, window time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &counter{resetAt: now.Add(window)}
		l.counters[key] = c
	}

	if c.count >= limit {
		retryAfter := int(math.Ceil(c.resetAt.Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &Error{RetryAfterSeconds: retryAfter}
	}

	c.count++
	return nil
}
