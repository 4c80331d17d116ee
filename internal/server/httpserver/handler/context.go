package handler

import (
	"context"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
)

type sessionKey struct{}

// WithSession stores the validated session on ctx.
func WithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by WithSession, or nil.
func SessionFromContext(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(sessionKey{}).(*domain.Session)
	return s
}
