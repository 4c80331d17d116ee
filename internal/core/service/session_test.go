package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

func newTestCoordinator(t *testing.T, store sharedstore.Store, clock *fakeClock, opts ...SessionOption) *SessionCoordinator {
	t.Helper()
	cfg := SessionConfig{
		TTL:             30 * time.Minute,
		IdleTimeout:     10 * time.Minute,
		RefreshInterval: time.Minute,
		LockWait:        2 * time.Second,
		LockLease:       10 * time.Second,
	}
	opts = append([]SessionOption{
		WithSessionClock(clock.Now),
		WithSessionLogger(logger.Discard()),
	}, opts...)
	return NewSessionCoordinator(store, cfg, opts...)
}

func TestSessionCoordinator_CreateReplacesPrevious(t *testing.T) {
	clock := newFakeClock()
	pub := &fakePublisher{}
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock, WithSessionPublisher(pub))
	ctx := context.Background()

	first, err := c.Create(ctx, "u1", map[string]string{domain.SessionMetaUserAgent: "a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ExpiresIn != 1800 {
		t.Errorf("ExpiresIn = %d, want 1800", first.ExpiresIn)
	}
	if len(pub.Events()) != 0 {
		t.Error("first login should not announce a session end")
	}

	second, err := c.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("second session id must differ")
	}

	if r := c.Validate(ctx, "u1", first.SessionID); r.Code != domain.ValidationInvalidSession {
		t.Errorf("Validate(first) code = %q, want INVALID_SESSION", r.Code)
	}
	if r := c.Validate(ctx, "u1", second.SessionID); !r.Valid {
		t.Errorf("Validate(second) = %+v, want valid", r)
	}

	active, err := c.Active(ctx, "u1")
	if err != nil || active == nil || active.SessionID != second.SessionID {
		t.Errorf("Active() = %+v, %v", active, err)
	}

	events := pub.Events()
	if len(events) != 1 || events[0].eventType != domain.EventSessionEnded {
		t.Fatalf("published = %+v, want one SESSION_ENDED", events)
	}
	ended := events[0].payload.(domain.SessionEndedPayload)
	if ended.SessionID != first.SessionID || ended.Reason != domain.SessionEndDuplicateLogin {
		t.Errorf("SESSION_ENDED payload = %+v", ended)
	}
}

func TestSessionCoordinator_ConcurrentCreate(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore(t, clock)
	c := newTestCoordinator(t, store, clock)
	ctx := context.Background()

	const n = 10
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Create(ctx, "u1", nil)
			errs[i] = err
			if err == nil {
				ids[i] = res.SessionID
			}
		}()
	}
	wg.Wait()

	valid := 0
	for i := range n {
		if errs[i] != nil {
			if !errors.Is(errs[i], domain.ErrSessionCreationBusy) {
				t.Errorf("Create #%d error = %v", i, errs[i])
			}
			continue
		}
		if c.Validate(ctx, "u1", ids[i]).Valid {
			valid++
		}
	}
	if valid != 1 {
		t.Errorf("valid sessions after concurrent create = %d, want 1", valid)
	}
}

func TestSessionCoordinator_CreateBusy(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore(t, clock)
	metrics := metric.NewRegistry()
	c := NewSessionCoordinator(store, SessionConfig{LockWait: 20 * time.Millisecond},
		WithSessionClock(clock.Now), WithSessionLogger(logger.Discard()), WithSessionMetrics(metrics))
	ctx := context.Background()

	held := store.Lock(sessionLockName("u1"))
	if ok, _ := held.TryAcquire(ctx, 0, time.Minute); !ok {
		t.Fatal("could not take the lock for the test")
	}

	if _, err := c.Create(ctx, "u1", nil); !errors.Is(err, domain.ErrSessionCreationBusy) {
		t.Fatalf("Create() error = %v, want ErrSessionCreationBusy", err)
	}
	if got := testutil.ToFloat64(metrics.SessionLockBusy); got != 1 {
		t.Errorf("lock busy counter = %v, want 1", got)
	}

	_ = held.Release(ctx)
	if _, err := c.Create(ctx, "u1", nil); err != nil {
		t.Errorf("Create() after release error = %v", err)
	}
}

func TestSessionCoordinator_CreateReleasesLock(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore(t, clock)
	failing := &failingStore{Store: store, setErr: errBoom}
	c := newTestCoordinator(t, failing, clock)
	ctx := context.Background()

	_, err := c.Create(ctx, "u1", nil)
	if !errors.Is(err, domain.ErrSessionCreationFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("Create() error = %v, want ErrSessionCreationFailed wrapping cause", err)
	}

	relock := store.Lock(sessionLockName("u1"))
	if ok, _ := relock.TryAcquire(ctx, 0, time.Second); !ok {
		t.Error("lock still held after a failed create")
	}
}

func TestSessionCoordinator_Validate(t *testing.T) {
	clock := newFakeClock()
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock)
	ctx := context.Background()

	res, _ := c.Create(ctx, "u1", nil)

	tests := []struct {
		name      string
		userID    string
		sessionID string
		wantValid bool
		wantCode  string
	}{
		{"valid", "u1", res.SessionID, true, ""},
		{"wrong id", "u1", "cmss_wrong", false, domain.ValidationInvalidSession},
		{"unknown user", "u2", res.SessionID, false, domain.ValidationInvalidSession},
		{"empty user", "", res.SessionID, false, domain.ValidationInvalidParameters},
		{"empty session", "u1", "", false, domain.ValidationInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Validate(ctx, tt.userID, tt.sessionID)
			if r.Valid != tt.wantValid || r.Code != tt.wantCode {
				t.Errorf("Validate() = %+v, want valid=%v code=%q", r, tt.wantValid, tt.wantCode)
			}
		})
	}
}

func TestSessionCoordinator_ValidateExpired(t *testing.T) {
	clock := newFakeClock()
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock)
	ctx := context.Background()

	res, _ := c.Create(ctx, "u1", nil)
	clock.Advance(11 * time.Minute)

	r := c.Validate(ctx, "u1", res.SessionID)
	if r.Code != domain.ValidationSessionExpired || !r.RequiresLogin() {
		t.Fatalf("Validate() = %+v, want SESSION_EXPIRED", r)
	}
	if r := c.Validate(ctx, "u1", res.SessionID); r.Code != domain.ValidationInvalidSession {
		t.Errorf("Validate() after expiry = %+v, want INVALID_SESSION", r)
	}
}

func TestSessionCoordinator_CoalescedRefresh(t *testing.T) {
	clock := newFakeClock()
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock)
	ctx := context.Background()

	res, _ := c.Create(ctx, "u1", nil)
	created := res.Session.LastActivity

	clock.Advance(30 * time.Second)
	_ = c.Validate(ctx, "u1", res.SessionID)
	if s, _ := c.Active(ctx, "u1"); s.LastActivity != created {
		t.Error("validate inside the refresh interval must not rewrite the session")
	}

	clock.Advance(45 * time.Second)
	r := c.Validate(ctx, "u1", res.SessionID)
	if !r.Valid || r.Session.LastActivity != clock.Now().UnixMilli() {
		t.Fatalf("Validate() = %+v, want refreshed session", r)
	}
	s, _ := c.Active(ctx, "u1")
	if s.LastActivity != clock.Now().UnixMilli() {
		t.Errorf("stored LastActivity = %d, want %d", s.LastActivity, clock.Now().UnixMilli())
	}
	if s.ExpiresAt != clock.Now().Add(30*time.Minute).UnixMilli() {
		t.Errorf("stored ExpiresAt not extended")
	}

	// Activity keeps the session alive past the idle timeout.
	clock.Advance(9 * time.Minute)
	if r := c.Validate(ctx, "u1", res.SessionID); !r.Valid {
		t.Errorf("Validate() = %+v, want valid after refresh", r)
	}
}

func TestSessionCoordinator_Touch(t *testing.T) {
	clock := newFakeClock()
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock)
	ctx := context.Background()

	c.Touch(ctx, "")
	c.Touch(ctx, "nobody")

	_, _ = c.Create(ctx, "u1", nil)
	clock.Advance(2 * time.Minute)
	c.Touch(ctx, "u1")

	s, _ := c.Active(ctx, "u1")
	if s.LastActivity != clock.Now().UnixMilli() {
		t.Errorf("Touch() did not refresh LastActivity")
	}
}

func TestSessionCoordinator_ValidateStoreError(t *testing.T) {
	clock := newFakeClock()
	store := newMemoryStore(t, clock)
	c := newTestCoordinator(t, store, clock)
	ctx := context.Background()
	res, _ := c.Create(ctx, "u1", nil)

	broken := newTestCoordinator(t, &failingStore{Store: store, getErr: errBoom}, clock)
	r := broken.Validate(ctx, "u1", res.SessionID)
	if r.Code != domain.ValidationError || r.RequiresLogin() {
		t.Errorf("Validate() = %+v, want VALIDATION_ERROR", r)
	}

	// Touch swallows the failure.
	broken.Touch(ctx, "u1")
}

func TestSessionCoordinator_Remove(t *testing.T) {
	clock := newFakeClock()
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock)
	ctx := context.Background()

	first, _ := c.Create(ctx, "u1", nil)
	second, _ := c.Create(ctx, "u1", nil)

	// A logout carrying the replaced id must not end the newer session.
	if err := c.Remove(ctx, "u1", first.SessionID); err != nil {
		t.Fatalf("Remove(stale) error = %v", err)
	}
	if r := c.Validate(ctx, "u1", second.SessionID); !r.Valid {
		t.Fatal("stale removal deleted the current session")
	}

	if err := c.Remove(ctx, "u1", second.SessionID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if s, _ := c.Active(ctx, "u1"); s != nil {
		t.Error("session still present after Remove")
	}

	third, _ := c.Create(ctx, "u1", nil)
	if err := c.Remove(ctx, "u1", ""); err != nil {
		t.Fatalf("Remove(force) error = %v", err)
	}
	if r := c.Validate(ctx, "u1", third.SessionID); r.Valid {
		t.Error("force removal left the session valid")
	}

	if err := c.Remove(ctx, "", ""); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Remove(empty user) error = %v", err)
	}
}

func TestSessionCoordinator_RemoveAnnouncesLogout(t *testing.T) {
	clock := newFakeClock()
	pub := &fakePublisher{}
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock, WithSessionPublisher(pub))
	ctx := context.Background()

	created, _ := c.Create(ctx, "u1", nil)
	_ = c.Remove(ctx, "u1", "cmss_not-the-current-one")
	if n := len(pub.Events()); n != 0 {
		t.Fatalf("stale removal published %d events", n)
	}

	_ = c.Remove(ctx, "u1", created.SessionID)
	_ = c.Remove(ctx, "u1", "")

	want := []domain.SessionEndedPayload{
		{UserID: "u1", SessionID: created.SessionID, Reason: domain.SessionEndLogout, Message: "signed out"},
		{UserID: "u1", SessionID: "", Reason: domain.SessionEndLogout, Message: "signed out"},
	}
	events := pub.Events()
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.eventType != domain.EventSessionEnded {
			t.Errorf("event %d type = %s", i, ev.eventType)
		}
		if got, _ := ev.payload.(domain.SessionEndedPayload); got != want[i] {
			t.Errorf("event %d payload = %+v, want %+v", i, got, want[i])
		}
	}
}

func TestSessionCoordinator_PublishFailureIgnored(t *testing.T) {
	clock := newFakeClock()
	pub := &fakePublisher{err: errBoom}
	c := newTestCoordinator(t, newMemoryStore(t, clock), clock, WithSessionPublisher(pub))
	ctx := context.Background()

	_, _ = c.Create(ctx, "u1", nil)
	if _, err := c.Create(ctx, "u1", nil); err != nil {
		t.Errorf("Create() error = %v, publish failures must not fail creation", err)
	}
}
