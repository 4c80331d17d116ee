package sharedstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("sharedstore: key not found")

// ErrNotConfigured is returned by a Limiter used before Configure.
var ErrNotConfigured = errors.New("sharedstore: rate limiter not configured")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("sharedstore: store closed")

// Store is the shared coordination store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 keeps the key until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only if it currently holds expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	// CompareAndSwap replaces the value under key with value and ttl only
	// if it currently holds expected.
	CompareAndSwap(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error)

	// Lock returns a handle on the named lock. Each handle has its own
	// owner identity; it is not safe to share one handle between goroutines.
	Lock(name string) Lock
	// RateLimiter returns a handle on the limiter stored under key.
	RateLimiter(key string) Limiter

	// Publish sends payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers handler for topic. The subscription is active
	// when Subscribe returns. handler runs on a goroutine owned by the
	// subscription and receives messages in publish order.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// Lock is a distributed mutual-exclusion lock with a lease.
type Lock interface {
	// TryAcquire waits up to wait for the lock. On success the lock is held
	// until Release or until lease elapses, whichever comes first. It
	// returns false without error when wait elapses.
	TryAcquire(ctx context.Context, wait, lease time.Duration) (bool, error)
	// Release frees the lock if this handle still owns it. Releasing a lock
	// whose lease already expired is a no-op.
	Release(ctx context.Context) error
	// Held reports whether the last TryAcquire on this handle succeeded and
	// Release has not been called since.
	Held() bool
}

// Limiter is a rate limiter whose state lives in the store.
type Limiter interface {
	// Configure sets rate permits per window. It only takes effect the
	// first time; later calls leave the stored configuration alone.
	Configure(ctx context.Context, rate int, window time.Duration) error
	// TryAcquire draws permits without waiting.
	TryAcquire(ctx context.Context, permits int) (bool, error)
	// Available returns the permits that could be drawn right now.
	Available(ctx context.Context) (int, error)
	// Expire drops the limiter state after ttl without activity.
	Expire(ctx context.Context, ttl time.Duration) error
}

// Handler receives one published payload.
type Handler func(ctx context.Context, payload []byte)

// Subscription is an active topic subscription.
type Subscription interface {
	Topic() string
	// Close stops delivery. It is idempotent.
	Close() error
}
