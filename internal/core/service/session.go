package service

import (
	"context"
	"errors"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

// Session defaults.
const (
	DefaultSessionTTL             = 30 * time.Minute
	DefaultSessionRefreshInterval = 60 * time.Second
	DefaultSessionLockWait        = 5 * time.Second
	DefaultSessionLockLease       = 10 * time.Second
)

// removeAttempts bounds the read/compare/delete loop in Remove.
const removeAttempts = 3

// EventPublisher publishes events to every instance.
type EventPublisher interface {
	Publish(ctx context.Context, eventType domain.EventType, payload any) error
}

// SessionConfig controls session lifetimes.
type SessionConfig struct {
	// TTL is the lifetime written with every session record.
	TTL time.Duration
	// IdleTimeout is how long a session may go without activity before
	// validation reports it expired. Zero means TTL.
	IdleTimeout time.Duration
	// RefreshInterval is the minimum idle time before validation or touch
	// rewrites the record.
	RefreshInterval time.Duration
	LockWait        time.Duration
	LockLease       time.Duration
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:             DefaultSessionTTL,
		RefreshInterval: DefaultSessionRefreshInterval,
		LockWait:        DefaultSessionLockWait,
		LockLease:       DefaultSessionLockLease,
	}
}

func (c SessionConfig) idleTimeout() time.Duration {
	if c.IdleTimeout > 0 {
		return c.IdleTimeout
	}
	return c.TTL
}

// SessionCoordinator enforces at most one live session per user across the
// cluster.
//
// Creation runs under a per-user lock in the shared store. Validation and
// touch are lock-free: they read the record, and write back a refreshed
// copy only when the refresh interval has passed and the record is
// unchanged since it was read.
type SessionCoordinator struct {
	store     sharedstore.Store
	cfg       SessionConfig
	publisher EventPublisher
	metrics   *metric.Registry
	log       logger.Logger
	now       func() time.Time
}

// SessionOption configures a SessionCoordinator.
type SessionOption func(*SessionCoordinator)

// WithSessionPublisher announces replaced sessions as SESSION_ENDED events.
func WithSessionPublisher(p EventPublisher) SessionOption {
	return func(c *SessionCoordinator) { c.publisher = p }
}

// WithSessionMetrics sets the metrics registry.
func WithSessionMetrics(m *metric.Registry) SessionOption {
	return func(c *SessionCoordinator) { c.metrics = m }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(c *SessionCoordinator) { c.log = l }
}

// WithSessionClock replaces time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(c *SessionCoordinator) { c.now = now }
}

// NewSessionCoordinator creates a SessionCoordinator. Zero durations in cfg
// fall back to the defaults.
func NewSessionCoordinator(store sharedstore.Store, cfg SessionConfig, opts ...SessionOption) *SessionCoordinator {
	def := DefaultSessionConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = def.LockWait
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = def.LockLease
	}

	c := &SessionCoordinator{
		store: store,
		cfg:   cfg,
		log:   logger.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metric.NewRegistry()
	}
	c.log = c.log.With("component", "session")
	return c
}

func sessionKey(userID string) string {
	return "session:user:" + userID
}

func sessionLockName(userID string) string {
	return "session:create:lock:" + userID
}

// load returns the stored session and its raw encoding, or nil when the
// user has none. A record that fails to decode is reported as absent.
func (c *SessionCoordinator) load(ctx context.Context, userID string) (*domain.Session, []byte, error) {
	raw, err := c.store.Get(ctx, sessionKey(userID))
	if errors.Is(err, sharedstore.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	s, err := domain.UnmarshalSession(raw)
	if err != nil {
		c.log.Warn("discarding undecodable session record", "user_id", userID, "error", err)
		return nil, raw, nil
	}
	return s, raw, nil
}

// ============================================================================
// Create
// ============================================================================

// Create starts a new session for userID, invalidating any session the
// user already has.
//
// It fails with ErrSessionCreationBusy when another creation for the same
// user holds the lock past the wait bound, and with ErrSessionCreationFailed
// on any store failure.
func (c *SessionCoordinator) Create(ctx context.Context, userID string, metadata map[string]string) (*domain.SessionCreationResult, error) {
	if userID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("user_id is required")
	}
	log := logger.L(ctx).With("component", "session", "user_id", userID)

	lock := c.store.Lock(sessionLockName(userID))
	acquired, err := lock.TryAcquire(ctx, c.cfg.LockWait, c.cfg.LockLease)
	if err != nil {
		log.Error("session lock failed", "error", err)
		return nil, domain.ErrSessionCreationFailed.WithCause(err)
	}
	if !acquired {
		c.metrics.SessionLockBusy.Inc()
		log.Warn("session creation lock busy")
		return nil, domain.ErrSessionCreationBusy
	}
	defer func() {
		if !lock.Held() {
			return
		}
		// Release even when ctx was cancelled mid-creation.
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Error("session lock release failed", "error", err)
		}
	}()

	previous, _, err := c.load(ctx, userID)
	if err != nil {
		log.Error("session lookup failed", "error", err)
		return nil, domain.ErrSessionCreationFailed.WithCause(err)
	}
	if err := c.store.Delete(ctx, sessionKey(userID)); err != nil {
		log.Error("session delete failed", "error", err)
		return nil, domain.ErrSessionCreationFailed.WithCause(err)
	}

	session, err := domain.NewSession(userID, metadata, c.cfg.TTL, c.now())
	if err != nil {
		return nil, domain.ErrSessionCreationFailed.WithCause(err)
	}
	data, err := domain.MarshalSession(session)
	if err != nil {
		return nil, domain.ErrSessionCreationFailed.WithCause(err)
	}
	if err := c.store.Set(ctx, sessionKey(userID), data, c.cfg.TTL); err != nil {
		log.Error("session write failed", "error", err)
		return nil, domain.ErrSessionCreationFailed.WithCause(err)
	}

	c.metrics.SessionsCreated.Inc()
	log.Info("session created", "session_id", session.SessionID)

	if previous != nil {
		c.metrics.SessionsReplaced.Inc()
		c.announceEnded(ctx, previous.UserID, previous.SessionID, domain.SessionEndDuplicateLogin, "signed in from another device")
	}

	return &domain.SessionCreationResult{
		SessionID: session.SessionID,
		ExpiresIn: int64(c.cfg.TTL / time.Second),
		Session:   session.Clone(),
	}, nil
}

// announceEnded tells the clients of an ended session, on whichever
// instance holds them, to drop it. An empty sessionID addresses every
// session of the user.
func (c *SessionCoordinator) announceEnded(ctx context.Context, userID, sessionID, reason, message string) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.Publish(ctx, domain.EventSessionEnded, domain.SessionEndedPayload{
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
		Message:   message,
	})
	if err != nil {
		c.log.Warn("session ended announcement failed", "user_id", userID, "reason", reason, "error", err)
	}
}

// ============================================================================
// Validate / Touch
// ============================================================================

// Validate checks sessionID against the user's live session. It never
// returns an error: every failure is a result code.
func (c *SessionCoordinator) Validate(ctx context.Context, userID, sessionID string) domain.SessionValidationResult {
	result := c.validate(ctx, userID, sessionID)
	label := result.Code
	if result.Valid {
		label = "VALID"
	}
	c.metrics.SessionValidations.WithLabelValues(label).Inc()
	return result
}

func (c *SessionCoordinator) validate(ctx context.Context, userID, sessionID string) domain.SessionValidationResult {
	log := logger.L(ctx).With("component", "session", "user_id", userID)

	if userID == "" || sessionID == "" {
		log.Warn("validate called with empty parameters")
		return domain.InvalidSession(domain.ValidationInvalidParameters, "user id and session id are required")
	}

	session, raw, err := c.load(ctx, userID)
	if err != nil {
		log.Error("session validation failed", "error", err)
		return domain.InvalidSession(domain.ValidationError, "session validation failed")
	}
	if session == nil {
		log.Warn("no session for user")
		return domain.InvalidSession(domain.ValidationInvalidSession, "session not found")
	}
	if !session.Matches(sessionID) {
		log.Warn("session id mismatch", "session_id", sessionID)
		return domain.InvalidSession(domain.ValidationInvalidSession, "session id does not match")
	}

	now := c.now()
	if session.TimedOut(now, c.cfg.idleTimeout()) {
		log.Warn("session timed out", "idle", session.IdleFor(now))
		if _, err := c.store.CompareAndDelete(ctx, sessionKey(userID), raw); err != nil {
			log.Error("expired session cleanup failed", "error", err)
		} else {
			c.metrics.SessionsExpired.Inc()
		}
		return domain.InvalidSession(domain.ValidationSessionExpired, "session expired")
	}

	if session.NeedsRefresh(now, c.cfg.RefreshInterval) {
		if err := c.refresh(ctx, session, raw, now); err != nil {
			log.Error("session refresh failed", "error", err)
			return domain.InvalidSession(domain.ValidationError, "session validation failed")
		}
	}
	return domain.ValidSession(session)
}

// refresh bumps the activity timestamps and rewrites the record if it is
// still the one that was read. Losing that race is not an error: either a
// concurrent refresh already did the work, or a newer login replaced the
// record and the next validation will report it.
func (c *SessionCoordinator) refresh(ctx context.Context, session *domain.Session, raw []byte, now time.Time) error {
	session.Refresh(now, c.cfg.TTL)
	data, err := domain.MarshalSession(session)
	if err != nil {
		return err
	}
	_, err = c.store.CompareAndSwap(ctx, sessionKey(session.UserID), raw, data, c.cfg.TTL)
	return err
}

// Touch records activity for userID. It is advisory: failures are logged
// and never reported.
func (c *SessionCoordinator) Touch(ctx context.Context, userID string) {
	log := logger.L(ctx).With("component", "session", "user_id", userID)
	if userID == "" {
		log.Warn("touch called with empty user id")
		return
	}

	session, raw, err := c.load(ctx, userID)
	if err != nil {
		log.Error("session touch failed", "error", err)
		return
	}
	if session == nil {
		log.Debug("no session to touch")
		return
	}

	now := c.now()
	if !session.NeedsRefresh(now, c.cfg.RefreshInterval) {
		return
	}
	if err := c.refresh(ctx, session, raw, now); err != nil {
		log.Error("session touch failed", "error", err)
	}
}

// ============================================================================
// Remove / Active
// ============================================================================

// Remove ends the user's session. With an empty sessionID it clears
// whatever session the user has. Otherwise it deletes the session only if
// it is still sessionID, so a logout racing a newer login leaves the newer
// session alone. A removal is announced as SESSION_ENDED so open streams
// of the ended session close.
func (c *SessionCoordinator) Remove(ctx context.Context, userID, sessionID string) error {
	if userID == "" {
		return domain.ErrMissingArgument.WithDetails("user_id is required")
	}
	log := logger.L(ctx).With("component", "session", "user_id", userID)

	if sessionID == "" {
		if err := c.store.Delete(ctx, sessionKey(userID)); err != nil {
			log.Error("session removal failed", "error", err)
			return domain.ErrSessionRemovalFailed.WithCause(err)
		}
		c.metrics.SessionsRemoved.Inc()
		log.Info("all sessions removed")
		c.announceEnded(ctx, userID, "", domain.SessionEndLogout, "signed out")
		return nil
	}

	for range removeAttempts {
		session, raw, err := c.load(ctx, userID)
		if err != nil {
			log.Error("session removal failed", "error", err)
			return domain.ErrSessionRemovalFailed.WithCause(err)
		}
		if session == nil || !session.Matches(sessionID) {
			return nil
		}
		deleted, err := c.store.CompareAndDelete(ctx, sessionKey(userID), raw)
		if err != nil {
			log.Error("session removal failed", "error", err)
			return domain.ErrSessionRemovalFailed.WithCause(err)
		}
		if deleted {
			c.metrics.SessionsRemoved.Inc()
			log.Info("session removed", "session_id", sessionID)
			c.announceEnded(ctx, userID, sessionID, domain.SessionEndLogout, "signed out")
			return nil
		}
		// The record changed under us, most likely a refresh. Re-read.
	}
	return domain.ErrSessionRemovalFailed.WithDetails("session kept changing during removal")
}

// Active returns a snapshot of the user's current session, or nil.
func (c *SessionCoordinator) Active(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("user_id is required")
	}
	session, _, err := c.load(ctx, userID)
	if err != nil {
		return nil, domain.ErrSharedStore.WithCause(err)
	}
	return session, nil
}
