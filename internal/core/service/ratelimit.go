package service

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/sharedstore"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
	"github.com/yndnr/chatmesh-go/internal/telemetry/metric"
)

// RateLimiter bounds requests per client across the whole cluster.
//
// Limiter state lives in the shared store under
// "ratelimit:<hostID>:<clientID>". The host identifier keeps limiters of
// instances that share a store but not a configuration apart, and tells
// operators which instance made a decision.
type RateLimiter struct {
	store   sharedstore.Store
	hostID  string
	metrics *metric.Registry
	log     logger.Logger
	now     func() time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterMetrics sets the metrics registry.
func WithRateLimiterMetrics(m *metric.Registry) RateLimiterOption {
	return func(r *RateLimiter) { r.metrics = m }
}

// WithRateLimiterLogger sets the logger.
func WithRateLimiterLogger(l logger.Logger) RateLimiterOption {
	return func(r *RateLimiter) { r.log = l }
}

// WithRateLimiterClock replaces time.Now for the reset timestamp.
func WithRateLimiterClock(now func() time.Time) RateLimiterOption {
	return func(r *RateLimiter) { r.now = now }
}

// NewRateLimiter creates a RateLimiter for the instance named hostID.
func NewRateLimiter(store sharedstore.Store, hostID string, opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		store:  store,
		hostID: hostID,
		log:    logger.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metric.NewRegistry()
	}
	r.log = r.log.With("component", "ratelimit", "host_id", hostID)
	return r
}

// HostID returns the instance identifier folded into every key.
func (r *RateLimiter) HostID() string {
	return r.hostID
}

func (r *RateLimiter) key(clientID string) string {
	return "ratelimit:" + r.hostID + ":" + clientID
}

// Check draws one permit for clientID from a limiter allowing maxRequests
// per window. It never waits. A rejected result carries
// RetryAfterSeconds equal to the window.
//
// Store failures are returned as ErrSharedStore; whether to fail open is
// the caller's decision.
func (r *RateLimiter) Check(ctx context.Context, clientID string, maxRequests int, window time.Duration) (domain.RateLimitCheckResult, error) {
	if clientID == "" {
		return domain.RateLimitCheckResult{}, domain.ErrMissingArgument.WithDetails("client id is required")
	}
	if maxRequests <= 0 || window <= 0 {
		return domain.RateLimitCheckResult{}, domain.ErrInvalidArgument.WithDetails("max requests and window must be positive")
	}

	windowSeconds := max(int64(1), int64(window/time.Second))
	limiter := r.store.RateLimiter(r.key(clientID))

	if err := limiter.Configure(ctx, maxRequests, window); err != nil {
		return domain.RateLimitCheckResult{}, domain.ErrSharedStore.WithCause(err)
	}
	// Bound storage growth once the client goes idle.
	if err := limiter.Expire(ctx, 2*time.Duration(windowSeconds)*time.Second); err != nil {
		return domain.RateLimitCheckResult{}, domain.ErrSharedStore.WithCause(err)
	}
	allowed, err := limiter.TryAcquire(ctx, 1)
	if err != nil {
		return domain.RateLimitCheckResult{}, domain.ErrSharedStore.WithCause(err)
	}

	reset := r.now().Unix() + windowSeconds
	scope := clientScope(clientID)

	if !allowed {
		r.metrics.RateLimitChecks.WithLabelValues(scope, "rejected").Inc()
		logger.L(ctx).Info("rate limit exceeded", "component", "ratelimit", "client_id", clientID, "limit", maxRequests)
		return domain.RateLimitRejected(maxRequests, windowSeconds, reset, windowSeconds), nil
	}

	r.metrics.RateLimitChecks.WithLabelValues(scope, "allowed").Inc()
	remaining, err := limiter.Available(ctx)
	if err != nil {
		// The permit is already drawn; report what we know.
		r.log.Warn("available permits lookup failed", "client_id", clientID, "error", err)
		remaining = 0
	}
	return domain.RateLimitAllowed(maxRequests, remaining, windowSeconds, reset), nil
}

// clientScope is the part of a client id before the first colon, used as
// a low-cardinality metric label ("msg:u1" → "msg").
func clientScope(clientID string) string {
	if i := strings.IndexByte(clientID, ':'); i > 0 {
		return clientID[:i]
	}
	return "default"
}

// ResolveHostID picks the instance identifier: the configured value, then
// $HOSTNAME, then the OS host name, then a random "unknown-xxxxxxxx".
func ResolveHostID(configured string) string {
	if configured != "" {
		return configured
	}
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown-" + uuid.NewString()[:8]
}
