package logger

import "context"

type ctxKey int

const (
	loggerKey ctxKey = iota
	fieldsKey
)

// fields are the request-scoped identifiers L attaches to every record.
type fields struct {
	requestID string
	userID    string
	roomID    string
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey).(fields)
	return f
}

func withFields(ctx context.Context, update func(*fields)) context.Context {
	f := fieldsFrom(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey, f)
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by WithLogger, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.requestID = id })
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).requestID
}

// WithUserID records the authenticated user on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.userID = id })
}

// UserIDFromContext extracts the user ID from context.
func UserIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).userID
}

// WithRoomID records the chat room a request operates on.
func WithRoomID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *fields) { f.roomID = id })
}

// L returns FromContext(ctx) enriched with the request, user and room IDs
// carried by ctx.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	f := fieldsFrom(ctx)
	var args []any
	if f.requestID != "" {
		args = append(args, "request_id", f.requestID)
	}
	if f.userID != "" {
		args = append(args, "user_id", f.userID)
	}
	if f.roomID != "" {
		args = append(args, "room_id", f.roomID)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}
