package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/core/service"
	"github.com/yndnr/chatmesh-go/internal/delivery"
	"github.com/yndnr/chatmesh-go/internal/telemetry/logger"
)

// DefaultHeartbeat is the SSE keep-alive interval.
const DefaultHeartbeat = 25 * time.Second

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the handler's collaborators.
type Config struct {
	Sessions  *service.SessionCoordinator
	Messages  *service.MessageService
	Hub       *delivery.Hub
	Store     Pinger
	Logger    logger.Logger
	Heartbeat time.Duration
}

// Handler serves the API routes. Routing and middleware are set up by the
// httpserver package; Handler only exposes http.HandlerFunc methods.
type Handler struct {
	sessions  *service.SessionCoordinator
	messages  *service.MessageService
	hub       *delivery.Hub
	store     Pinger
	log       logger.Logger
	heartbeat time.Duration
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &Handler{
		sessions:  cfg.Sessions,
		messages:  cfg.Messages,
		hub:       cfg.Hub,
		store:     cfg.Store,
		log:       cfg.Logger.With("component", "http"),
		heartbeat: cfg.Heartbeat,
	}
}

// writeJSON writes a success envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteError(w, r, status, code, message)
}

// WriteError writes an error envelope. It is shared with the middleware.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message))
}

// decode reads a JSON body into v. It writes the error response itself
// and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body")
		return false
	}
	return true
}

// handleServiceError maps a service error to a response.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := ErrorCodeToHTTPStatus(de.Code)
		if status >= 500 {
			logger.L(r.Context()).Error("request failed", "component", "http", "code", de.Code, "error", err)
		}
		msg := de.Message
		if de.Details != "" && status < 500 {
			msg += ": " + de.Details
		}
		h.writeError(w, r, status, de.Code, msg)
		return
	}

	logger.L(r.Context()).Error("internal error", "component", "http", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message)
}

// ErrorCodeToHTTPStatus maps an error code to an HTTP status.
func ErrorCodeToHTTPStatus(code string) int {
	switch {
	case code == domain.ErrSessionCreationBusy.Code:
		return http.StatusConflict
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		if strings.HasPrefix(code, "CM-SESS-") {
			return http.StatusUnauthorized
		}
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4010"), strings.HasSuffix(code, "-4011"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "CM-ARG-"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ClientIP returns the caller's address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
