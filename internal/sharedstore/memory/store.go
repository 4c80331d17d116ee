package memory

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/pkg/cmap"
)

const (
	// DefaultJanitorInterval is how often expired entries are swept.
	DefaultJanitorInterval = time.Minute
	// DefaultBufferSize is the per-subscription queue length.
	DefaultBufferSize = 256
)

type item struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (it item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// Store is an in-memory sharedstore.Store.
type Store struct {
	now        func() time.Time
	bufferSize int
	log        logger.Logger

	values   *cmap.Map[item]
	locks    *cmap.Map[lockEntry]
	limiters *cmap.Map[*limiterEntry]

	subsMu sync.RWMutex
	subs   map[string]map[*subscription]struct{}

	dropped atomic.Uint64
	dropLog rate.Sometimes

	closed      atomic.Bool
	stopJanitor chan struct{}
	janitorDone chan struct{}
}

var _ sharedstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for TTL, lease and limiter arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBufferSize sets the per-subscription queue length.
func WithBufferSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store and starts its janitor. janitorInterval <= 0 uses
// DefaultJanitorInterval.
func New(janitorInterval time.Duration, opts ...Option) *Store {
	if janitorInterval <= 0 {
		janitorInterval = DefaultJanitorInterval
	}
	s := &Store{
		now:         time.Now,
		bufferSize:  DefaultBufferSize,
		log:         logger.Default(),
		values:      cmap.New[item](),
		locks:       cmap.New[lockEntry](),
		limiters:    cmap.New[*limiterEntry](),
		subs:        make(map[string]map[*subscription]struct{}),
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
		dropLog:     rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "sharedstore.memory")
	go s.janitor(janitorInterval)
	return s
}

// Get implements sharedstore.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, sharedstore.ErrClosed
	}
	it, ok := s.values.Get(key)
	if !ok || it.expired(s.now()) {
		return nil, sharedstore.ErrNotFound
	}
	return bytes.Clone(it.value), nil
}

// Set implements sharedstore.Store.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return sharedstore.ErrClosed
	}
	it := item{value: bytes.Clone(value)}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	s.values.Set(key, it)
	return nil
}

// Delete implements sharedstore.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	if s.closed.Load() {
		return sharedstore.ErrClosed
	}
	s.values.Delete(key)
	return nil
}

// CompareAndDelete implements sharedstore.Store.
func (s *Store) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	if s.closed.Load() {
		return false, sharedstore.ErrClosed
	}
	now := s.now()
	deleted := false
	s.values.Compute(key, func(cur item, exists bool) (item, bool) {
		if !exists || cur.expired(now) {
			return cur, false
		}
		if !bytes.Equal(cur.value, expected) {
			return cur, true
		}
		deleted = true
		return cur, false
	})
	return deleted, nil
}

// CompareAndSwap implements sharedstore.Store.
func (s *Store) CompareAndSwap(_ context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, sharedstore.ErrClosed
	}
	now := s.now()
	swapped := false
	s.values.Compute(key, func(cur item, exists bool) (item, bool) {
		if !exists || cur.expired(now) {
			return cur, false
		}
		if !bytes.Equal(cur.value, expected) {
			return cur, true
		}
		swapped = true
		next := item{value: bytes.Clone(value)}
		if ttl > 0 {
			next.expiresAt = now.Add(ttl)
		}
		return next, true
	})
	return swapped, nil
}

// Ping implements sharedstore.Store.
func (s *Store) Ping(context.Context) error {
	if s.closed.Load() {
		return sharedstore.ErrClosed
	}
	return nil
}

// Close stops the janitor and ends every subscription.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopJanitor)
	<-s.janitorDone

	s.subsMu.Lock()
	var all []*subscription
	for _, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	s.subs = make(map[string]map[*subscription]struct{})
	s.subsMu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

func (s *Store) janitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopJanitor:
			return
		case <-ticker.C:
			n := s.sweep()
			if n > 0 {
				s.log.Debug("swept expired entries", "count", n)
			}
		}
	}
}

// sweep removes expired values, locks and limiters.
func (s *Store) sweep() int {
	now := s.now()
	n := s.values.DeleteFunc(func(_ string, it item) bool { return it.expired(now) })
	n += s.locks.DeleteFunc(func(_ string, e lockEntry) bool { return !now.Before(e.expiresAt) })
	n += s.limiters.DeleteFunc(func(_ string, e *limiterEntry) bool { return e.expired(now) })
	return n
}
