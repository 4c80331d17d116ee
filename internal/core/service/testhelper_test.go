package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/sharedstore/memory"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newMemoryStore(t *testing.T, clock *fakeClock) *memory.Store {
	t.Helper()
	s := memory.New(time.Hour, memory.WithClock(clock.Now), memory.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// failingStore fails selected operations of an otherwise working store.
type failingStore struct {
	sharedstore.Store
	getErr error
	setErr error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value, ttl)
}

type publishedEvent struct {
	eventType domain.EventType
	payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, eventType domain.EventType, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{eventType: eventType, payload: payload})
	return nil
}

func (p *fakePublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

// fakeRepo is an in-memory MessageRepository.
type fakeRepo struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
	files    map[string]*domain.File
	saves    int
	saveErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		messages: make(map[string]*domain.Message),
		files:    make(map[string]*domain.File),
	}
}

func (r *fakeRepo) Find(_ context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return cloneMessage(m), nil
}

func (r *fakeRepo) Mutate(_ context.Context, id string, fn func(*domain.Message) bool) (*domain.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, false, domain.ErrMessageNotFound
	}
	cp := cloneMessage(m)
	if !fn(cp) {
		return cp, false, nil
	}
	if r.saveErr != nil {
		return nil, false, r.saveErr
	}
	r.saves++
	r.messages[id] = cp
	return cloneMessage(cp), true, nil
}

func cloneMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Reactions = make(domain.Reactions, len(m.Reactions))
	for sym, users := range m.Reactions {
		set := make(map[string]struct{}, len(users))
		for u := range users {
			set[u] = struct{}{}
		}
		cp.Reactions[sym] = set
	}
	if m.Readers != nil {
		cp.Readers = make(map[string]time.Time, len(m.Readers))
		for u, at := range m.Readers {
			cp.Readers[u] = at
		}
	}
	return &cp
}

func (r *fakeRepo) Save(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.messages[msg.ID] = msg
	return nil
}

func (r *fakeRepo) BulkSetReader(_ context.Context, ids []string, userID string, readAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if m, ok := r.messages[id]; ok {
			m.MarkRead(userID, readAt)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) FindFile(_ context.Context, id string) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return f, nil
}

func (r *fakeRepo) SaveFile(_ context.Context, file *domain.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[file.ID] = file
	return nil
}

var errBoom = errors.New("boom")
