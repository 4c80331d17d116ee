package domain

import (
	"encoding/json"
	"time"

	"github.com/yndnr/chatmesh-go/pkg/token"
)

// SessionIDPrefix is the prefix for session IDs.
const SessionIDPrefix = "cmss_"

// Metadata keys commonly stored in Session.Metadata.
const (
	SessionMetaUserAgent = "user_agent"
	SessionMetaIPAddress = "ip_address"
	SessionMetaDeviceID  = "device_id"
)

// Session is the one live session a user holds across every instance.
//
// It is stored in the shared store keyed by UserID, never by SessionID, so a
// new login overwrites the previous one.
type Session struct {
	UserID       string            `json:"user_id"`
	SessionID    string            `json:"session_id"`
	CreatedAt    int64             `json:"created_at"`    // Unix ms
	LastActivity int64             `json:"last_activity"` // Unix ms
	ExpiresAt    int64             `json:"expires_at"`    // Unix ms
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewSession creates a session for userID with a fresh unguessable id, valid
// for ttl from now.
func NewSession(userID string, metadata map[string]string, ttl time.Duration, now time.Time) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	ms := now.UnixMilli()
	return &Session{
		UserID:       userID,
		SessionID:    id,
		CreatedAt:    ms,
		LastActivity: ms,
		ExpiresAt:    now.Add(ttl).UnixMilli(),
		Metadata:     md,
	}, nil
}

// GenerateSessionID returns a new random session id: cmss_{base64url(32 bytes)}.
func GenerateSessionID() (string, error) {
	id, err := token.WithPrefix(SessionIDPrefix)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return id, nil
}

// Matches reports whether sessionID is this session's id (constant time).
func (s *Session) Matches(sessionID string) bool {
	return token.Equal(s.SessionID, sessionID)
}

// IdleFor returns how long the session has been inactive at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-s.LastActivity) * time.Millisecond
}

// TimedOut reports whether the session has been idle longer than timeout.
func (s *Session) TimedOut(now time.Time, timeout time.Duration) bool {
	return s.IdleFor(now) > timeout
}

// NeedsRefresh reports whether enough time has passed since the last
// persisted activity that the activity timestamp should be written again.
func (s *Session) NeedsRefresh(now time.Time, interval time.Duration) bool {
	return s.IdleFor(now) > interval
}

// Refresh bumps LastActivity to now and pushes ExpiresAt to now+ttl.
func (s *Session) Refresh(now time.Time, ttl time.Duration) {
	s.LastActivity = now.UnixMilli()
	s.ExpiresAt = now.Add(ttl).UnixMilli()
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (s *Session) ExpiresAtTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// LastActivityTime returns LastActivity as time.Time.
func (s *Session) LastActivityTime() time.Time {
	return time.UnixMilli(s.LastActivity)
}

// MarshalSession encodes a session for the shared store.
func MarshalSession(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSession decodes a session read from the shared store.
func UnmarshalSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionCreationResult is returned by a successful session creation.
type SessionCreationResult struct {
	SessionID string
	ExpiresIn int64 // seconds
	Session   *Session
}

// Validation result codes.
const (
	ValidationInvalidParameters = "INVALID_PARAMETERS"
	ValidationInvalidSession    = "INVALID_SESSION"
	ValidationSessionExpired    = "SESSION_EXPIRED"
	ValidationError             = "VALIDATION_ERROR"
)

// SessionValidationResult is the outcome of validating a (user, session id)
// pair. Failures are values, not errors: Code tells the caller which branch
// it is on.
type SessionValidationResult struct {
	Valid   bool
	Code    string
	Message string
	Session *Session
}

// ValidSession returns a successful validation result.
func ValidSession(s *Session) SessionValidationResult {
	return SessionValidationResult{Valid: true, Session: s}
}

// InvalidSession returns a failed validation result with the given code.
func InvalidSession(code, message string) SessionValidationResult {
	return SessionValidationResult{Code: code, Message: message}
}

// RequiresLogin reports whether the failure means the client must log in again.
func (r SessionValidationResult) RequiresLogin() bool {
	switch r.Code {
	case ValidationInvalidSession, ValidationSessionExpired, ValidationInvalidParameters:
		return true
	}
	return false
}

// Err converts a failed result into the matching domain error, or nil when valid.
func (r SessionValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	switch r.Code {
	case ValidationSessionExpired:
		return ErrSessionExpired.WithDetails(r.Message)
	case ValidationInvalidSession:
		return ErrSessionMismatch.WithDetails(r.Message)
	case ValidationInvalidParameters:
		return ErrMissingArgument.WithDetails(r.Message)
	default:
		return ErrInternalServer.WithDetails(r.Message)
	}
}
