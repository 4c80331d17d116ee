package redisstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// newTestStore connects to the Redis named by CHATMESH_TEST_REDIS_ADDR.
// Every test gets its own key prefix.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("CHATMESH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATMESH_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := New(ctx, Config{
		Addr:      addr,
		KeyPrefix: "chatmesh-test:" + ulid.Make().String() + ":",
	}, logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewFromClient_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	s := NewFromClient(client, "p:", 0, nil)
	defer s.Close()

	if s.channelSize != 256 {
		t.Errorf("channelSize = %d, want 256", s.channelSize)
	}
	if got := s.key("session:user:1"); got != "p:session:user:1" {
		t.Errorf("key() = %q", got)
	}
	l := s.RateLimiter("host:client").(*limiter)
	if l.configKey != "p:rl:{host:client}:config" || l.logKey != "p:rl:{host:client}:log" {
		t.Errorf("limiter keys = %q, %q", l.configKey, l.logKey)
	}
}

func TestStore_KV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, sharedstore.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := s.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	if ok, err := s.CompareAndSwap(ctx, "k", []byte("v"), []byte("v2"), time.Minute); err != nil || !ok {
		t.Fatalf("CompareAndSwap() = %v, %v", ok, err)
	}
	if ok, _ := s.CompareAndSwap(ctx, "k", []byte("v"), []byte("v3"), time.Minute); ok {
		t.Error("CompareAndSwap(stale) swapped")
	}

	if ok, _ := s.CompareAndDelete(ctx, "k", []byte("other")); ok {
		t.Error("CompareAndDelete(mismatch) deleted")
	}
	if ok, err := s.CompareAndDelete(ctx, "k", []byte("v2")); err != nil || !ok {
		t.Errorf("CompareAndDelete(match) = %v, %v", ok, err)
	}
}

func TestLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := s.Lock("user:1")
	b := s.Lock("user:1")
	if ok, err := a.TryAcquire(ctx, 0, 5*time.Second); err != nil || !ok {
		t.Fatalf("a.TryAcquire() = %v, %v", ok, err)
	}
	if ok, _ := b.TryAcquire(ctx, 100*time.Millisecond, 5*time.Second); ok {
		t.Fatal("b acquired a held lock")
	}
	_ = a.Release(ctx)
	if ok, _ := b.TryAcquire(ctx, 0, 5*time.Second); !ok {
		t.Error("b should acquire after release")
	}
	_ = b.Release(ctx)
}

func TestLimiter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	l := s.RateLimiter("host:client")

	if _, err := l.TryAcquire(ctx, 1); !errors.Is(err, sharedstore.ErrNotConfigured) {
		t.Fatalf("TryAcquire before Configure error = %v", err)
	}
	_ = l.Configure(ctx, 3, time.Minute)
	_ = l.Expire(ctx, 2*time.Minute)

	want := []bool{true, true, true, false}
	for i, w := range want {
		if ok, err := l.TryAcquire(ctx, 1); err != nil || ok != w {
			t.Errorf("TryAcquire #%d = %v, %v, want %v", i+1, ok, err, w)
		}
	}
	if n, _ := l.Available(ctx); n != 0 {
		t.Errorf("Available() = %d, want 0", n)
	}
}

func TestPubSub(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	sub, err := s.Subscribe(ctx, "chat:message", func(_ context.Context, p []byte) {
		got = string(p)
		wg.Done()
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "chat:message", []byte("hello")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	if got != "hello" {
		t.Errorf("payload = %q", got)
	}
}
