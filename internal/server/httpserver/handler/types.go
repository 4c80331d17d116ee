package handler

import (
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
)

// Response is the API response envelope. /metrics and the event stream
// are the only routes that do not use it.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	UserID   string            `json:"user_id"`
	DeviceID string            `json:"device_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	ExpiresIn int64  `json:"expires_in"`
	ExpiresAt int64  `json:"expires_at"`
}

// ValidateSessionRequest is the body of POST /sessions/validate.
type ValidateSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Touch     bool   `json:"touch,omitempty"`
}

// ValidateSessionResponse is returned by POST /sessions/validate. An
// invalid session is a successful call with Valid false.
type ValidateSessionResponse struct {
	Valid         bool   `json:"valid"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	RequiresLogin bool   `json:"requires_login,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	LastActivity  int64  `json:"last_activity,omitempty"`
}

// UserRequest is the body of POST /sessions/touch.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// RemoveSessionRequest is the body of POST /sessions/remove. An empty
// SessionID removes whatever session the user holds.
type RemoveSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// SendMessageRequest is the body of POST /rooms/{room_id}/messages.
type SendMessageRequest struct {
	Content  string             `json:"content"`
	Type     domain.MessageType `json:"type,omitempty"`
	FileID   string             `json:"file_id,omitempty"`
	AIType   string             `json:"ai_type,omitempty"`
	Mentions []string           `json:"mentions,omitempty"`
}

// ReactRequest is the body of POST /messages/{id}/reactions.
type ReactRequest struct {
	Reaction string `json:"reaction"`
	Type     string `json:"type"`
}

// MarkReadRequest is the body of POST /rooms/{room_id}/read.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// RoomEventRequest is the body of POST /rooms/{room_id}/events.
type RoomEventRequest struct {
	Type         domain.EventType     `json:"type"`
	UserID       string               `json:"user_id,omitempty"`
	UserName     string               `json:"user_name,omitempty"`
	Participants []domain.Participant `json:"participants,omitempty"`
	Room         *domain.RoomSummary  `json:"room,omitempty"`
}
