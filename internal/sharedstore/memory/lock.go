package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
)

const lockPollInterval = 10 * time.Millisecond

type lockEntry struct {
	owner     string
	expiresAt time.Time
}

type lock struct {
	s     *Store
	name  string
	owner string
	held  bool
}

// Lock implements sharedstore.Store.
func (s *Store) Lock(name string) sharedstore.Lock {
	return &lock{s: s, name: name, owner: ulid.Make().String()}
}

func (l *lock) tryOnce(lease time.Duration) bool {
	now := l.s.now()
	acquired := false
	l.s.locks.Compute(l.name, func(cur lockEntry, exists bool) (lockEntry, bool) {
		if exists && cur.owner != l.owner && now.Before(cur.expiresAt) {
			return cur, true
		}
		acquired = true
		return lockEntry{owner: l.owner, expiresAt: now.Add(lease)}, true
	})
	return acquired
}

func (l *lock) TryAcquire(ctx context.Context, wait, lease time.Duration) (bool, error) {
	if l.s.closed.Load() {
		return false, sharedstore.ErrClosed
	}
	if l.tryOnce(lease) {
		l.held = true
		return true, nil
	}
	if wait <= 0 {
		return false, nil
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	poll := time.NewTicker(lockPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-poll.C:
			if l.tryOnce(lease) {
				l.held = true
				return true, nil
			}
		}
	}
}

func (l *lock) Release(context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	l.s.locks.Compute(l.name, func(cur lockEntry, exists bool) (lockEntry, bool) {
		if exists && cur.owner == l.owner {
			return cur, false
		}
		return cur, exists
	})
	return nil
}

func (l *lock) Held() bool {
	return l.held
}
