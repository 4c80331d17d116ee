package redisstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
)

type subscription struct {
	topic string
	ps    *redis.PubSub
	once  sync.Once
	err   error
}

func (sub *subscription) Topic() string { return sub.topic }

func (sub *subscription) Close() error {
	sub.once.Do(func() { sub.err = sub.ps.Close() })
	return sub.err
}

// Publish implements sharedstore.Store.
func (s *Store) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := s.client.Publish(ctx, s.key(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements sharedstore.Store. It waits for the server to
// confirm the subscription before returning.
func (s *Store) Subscribe(ctx context.Context, topic string, handler sharedstore.Handler) (sharedstore.Subscription, error) {
	ps := s.client.Subscribe(ctx, s.key(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	sub := &subscription{topic: topic, ps: ps}
	ch := ps.Channel(redis.WithChannelSize(s.channelSize))

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					s.log.Debug("subscription closed", "topic", topic)
					return
				}
				handler(ctx, []byte(msg.Payload))
			}
		}
	}()
	return sub, nil
}
