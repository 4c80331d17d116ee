package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
)

type subscription struct {
	s     *Store
	topic string
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
}

func (sub *subscription) Topic() string { return sub.topic }

func (sub *subscription) Close() error {
	sub.s.subsMu.Lock()
	if set, ok := sub.s.subs[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(sub.s.subs, sub.topic)
		}
	}
	sub.s.subsMu.Unlock()
	sub.stop()
	return nil
}

func (sub *subscription) stop() {
	sub.once.Do(func() { close(sub.done) })
}

// Subscribe implements sharedstore.Store. The subscription ends when ctx is
// done, when it is closed, or when the store is closed.
func (s *Store) Subscribe(ctx context.Context, topic string, handler sharedstore.Handler) (sharedstore.Subscription, error) {
	if s.closed.Load() {
		return nil, sharedstore.ErrClosed
	}
	sub := &subscription{
		s:     s,
		topic: topic,
		ch:    make(chan []byte, s.bufferSize),
		done:  make(chan struct{}),
	}

	s.subsMu.Lock()
	set, ok := s.subs[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		s.subs[topic] = set
	}
	set[sub] = struct{}{}
	s.subsMu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				_ = sub.Close()
				return
			case payload := <-sub.ch:
				handler(ctx, payload)
			}
		}
	}()
	return sub, nil
}

// Publish implements sharedstore.Store. It never waits on a subscriber:
// when a subscription's queue is full the message is dropped for that
// subscription and counted in Dropped.
func (s *Store) Publish(_ context.Context, topic string, payload []byte) error {
	if s.closed.Load() {
		return sharedstore.ErrClosed
	}

	s.subsMu.RLock()
	targets := make([]*subscription, 0, len(s.subs[topic]))
	for sub := range s.subs[topic] {
		targets = append(targets, sub)
	}
	s.subsMu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- bytes.Clone(payload):
		case <-sub.done:
		default:
			n := s.dropped.Add(1)
			s.dropLog.Do(func() {
				s.log.Warn("subscriber queue full, message dropped", "topic", topic, "dropped_total", n)
			})
		}
	}
	return nil
}

// Dropped returns how many messages Publish discarded because a
// subscription's queue was full.
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}
