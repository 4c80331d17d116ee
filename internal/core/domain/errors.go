package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format CM-<AREA>-<NNNN>, where the last four digits mirror
// the closest HTTP status.
type DomainError struct {
	Code    string // Error code (e.g., "CM-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support; two domain errors match by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionCreationBusy indicates another login for the same user holds
	// the creation lock. Retryable.
	ErrSessionCreationBusy = NewDomainError("CM-SESS-4290", "session creation in progress, try again shortly")

	// ErrSessionCreationFailed indicates the shared store failed during creation.
	ErrSessionCreationFailed = NewDomainError("CM-SESS-5000", "session creation failed")

	// ErrSessionRemovalFailed indicates the shared store failed during removal.
	ErrSessionRemovalFailed = NewDomainError("CM-SESS-5001", "session removal failed")

	// ErrSessionNotFound indicates the user has no live session.
	ErrSessionNotFound = NewDomainError("CM-SESS-4040", "session not found")

	// ErrSessionMismatch indicates the presented session id is not the user's
	// current session, usually because a newer login replaced it.
	ErrSessionMismatch = NewDomainError("CM-SESS-4010", "session id mismatch")

	// ErrSessionExpired indicates the session timed out from inactivity.
	ErrSessionExpired = NewDomainError("CM-SESS-4011", "session expired")
)

// ============================================================================
// Message Errors (MSG)
// ============================================================================

var (
	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = NewDomainError("CM-MSG-4040", "message not found")

	// ErrFileNotFound indicates the referenced file has no stored metadata.
	ErrFileNotFound = NewDomainError("CM-MSG-4041", "file not found")

	// ErrInvalidReaction indicates an unknown reaction operation or empty symbol.
	ErrInvalidReaction = NewDomainError("CM-MSG-4001", "invalid reaction")
)

// ============================================================================
// Event Errors (EVT)
// ============================================================================

var (
	// ErrEventPublishFailed indicates the broker rejected or never received
	// the envelope. Non-fatal for the triggering action.
	ErrEventPublishFailed = NewDomainError("CM-EVT-5000", "event publish failed")

	// ErrEventDecode indicates an envelope or payload could not be decoded.
	ErrEventDecode = NewDomainError("CM-EVT-4000", "event decode failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("CM-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage collaborator error.
	ErrStorageError = NewDomainError("CM-SYS-5001", "storage error")

	// ErrSharedStore indicates a shared store (cache/lock/pubsub) error.
	ErrSharedStore = NewDomainError("CM-SYS-5002", "shared store error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("CM-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("CM-SYS-4290", "too many requests")

	// ErrUnauthorized indicates missing or wrong admin credentials.
	ErrUnauthorized = NewDomainError("CM-SYS-4010", "unauthorized")

	// ErrForbidden indicates the caller may not use the route.
	ErrForbidden = NewDomainError("CM-SYS-4030", "forbidden")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("CM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("CM-ARG-1002", "missing required argument")
)
