package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
)

const (
	lockBackoffMin = 25 * time.Millisecond
	lockBackoffMax = 250 * time.Millisecond
)

type lock struct {
	s     *Store
	key   string
	owner string
	held  bool
}

// Lock implements sharedstore.Store.
func (s *Store) Lock(name string) sharedstore.Lock {
	return &lock{s: s, key: s.key("lock:" + name), owner: ulid.Make().String()}
}

// TryAcquire polls SET NX PX with exponential backoff until wait elapses.
func (l *lock) TryAcquire(ctx context.Context, wait, lease time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	backoff := lockBackoffMin

	for {
		ok, err := l.s.client.SetNX(ctx, l.key, l.owner, lease).Result()
		if err != nil {
			return false, fmt.Errorf("redis lock %s: %w", l.key, err)
		}
		if ok {
			l.held = true
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		sleep := min(backoff, remaining)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, lockBackoffMax)
	}
}

// Release deletes the lock key only while it still holds this owner, so an
// expired lease that another caller has since taken is left alone.
func (l *lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := compareAndDeleteScript.Run(ctx, l.s.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}

func (l *lock) Held() bool {
	return l.held
}
