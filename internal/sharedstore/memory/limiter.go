package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
)

// limiterEntry is a sliding log of drawn permits. A permit counts against
// the limit until window has passed since it was drawn, the same rule the
// Redis limiter script applies to its sorted set.
type limiterEntry struct {
	mu        sync.Mutex
	rate      int
	window    time.Duration
	log       []time.Time // ascending
	expiresAt time.Time
}

func (e *limiterEntry) expired(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// prune drops permits drawn at or before now-window. Callers hold mu.
func (e *limiterEntry) prune(now time.Time) {
	cutoff := now.Add(-e.window)
	i := 0
	for i < len(e.log) && !e.log[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.log = append(e.log[:0], e.log[i:]...)
	}
}

type limiter struct {
	s   *Store
	key string
}

// RateLimiter implements sharedstore.Store.
func (s *Store) RateLimiter(key string) sharedstore.Limiter {
	return &limiter{s: s, key: key}
}

// entry returns the live limiter state or nil.
func (l *limiter) entry() *limiterEntry {
	e, ok := l.s.limiters.Get(l.key)
	if !ok || e.expired(l.s.now()) {
		return nil
	}
	return e
}

// Configure sets rate and window unless the limiter already exists.
func (l *limiter) Configure(_ context.Context, permits int, window time.Duration) error {
	if l.s.closed.Load() {
		return sharedstore.ErrClosed
	}
	if permits <= 0 || window <= 0 {
		return nil
	}
	now := l.s.now()
	l.s.limiters.Compute(l.key, func(cur *limiterEntry, exists bool) (*limiterEntry, bool) {
		if exists && !cur.expired(now) {
			return cur, true
		}
		return &limiterEntry{rate: permits, window: window}, true
	})
	return nil
}

func (l *limiter) TryAcquire(_ context.Context, permits int) (bool, error) {
	if l.s.closed.Load() {
		return false, sharedstore.ErrClosed
	}
	e := l.entry()
	if e == nil {
		return false, sharedstore.ErrNotConfigured
	}
	now := l.s.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now)
	if len(e.log)+permits > e.rate {
		return false, nil
	}
	for range permits {
		e.log = append(e.log, now)
	}
	return true, nil
}

func (l *limiter) Available(context.Context) (int, error) {
	if l.s.closed.Load() {
		return 0, sharedstore.ErrClosed
	}
	e := l.entry()
	if e == nil {
		return 0, sharedstore.ErrNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(l.s.now())
	return max(0, e.rate-len(e.log)), nil
}

func (l *limiter) Expire(_ context.Context, ttl time.Duration) error {
	if l.s.closed.Load() {
		return sharedstore.ErrClosed
	}
	e := l.entry()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ttl > 0 {
		e.expiresAt = l.s.now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}
