package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/core/service"
)

// SetRateLimitHeaders writes the X-RateLimit-* headers, and Retry-After
// on a rejection.
func SetRateLimitHeaders(w http.ResponseWriter, rl domain.RateLimitCheckResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetEpochSecond, 10))
	if !rl.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds, 10))
	}
}

// HandleSendMessage handles POST /rooms/{room_id}/messages.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		h.writeError(w, r, http.StatusUnauthorized, domain.ErrSessionNotFound.Code, "session required")
		return
	}
	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.messages.Send(r.Context(), &service.SendMessageRequest{
		RoomID:   r.PathValue("room_id"),
		SenderID: session.UserID,
		Content:  req.Content,
		Type:     req.Type,
		FileID:   req.FileID,
		AIType:   req.AIType,
		Mentions: req.Mentions,
	})
	if resp != nil {
		SetRateLimitHeaders(w, resp.RateLimit)
	}
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			h.writeError(w, r, http.StatusTooManyRequests, domain.ErrRateLimited.Code, "message rate exceeded")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, resp.Message.View())
}

// HandleReact handles POST /messages/{id}/reactions.
func (h *Handler) HandleReact(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		h.writeError(w, r, http.StatusUnauthorized, domain.ErrSessionNotFound.Code, "session required")
		return
	}
	var req ReactRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = service.ReactionToggle
	}

	update, err := h.messages.React(r.Context(), &service.ReactRequest{
		MessageID: r.PathValue("id"),
		Reaction:  req.Reaction,
		UserID:    session.UserID,
		Type:      req.Type,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, update)
}

// HandleMarkRead handles POST /rooms/{room_id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		h.writeError(w, r, http.StatusUnauthorized, domain.ErrSessionNotFound.Code, "session required")
		return
	}
	var req MarkReadRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload, err := h.messages.MarkRead(r.Context(), &service.MarkReadRequest{
		RoomID:     r.PathValue("room_id"),
		UserID:     session.UserID,
		MessageIDs: req.MessageIDs,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, payload)
}

// HandleRoomEvent handles POST /rooms/{room_id}/events, the fan-out entry
// point for room lifecycle events produced by the room service.
func (h *Handler) HandleRoomEvent(w http.ResponseWriter, r *http.Request) {
	var req RoomEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.messages.AnnounceRoomEvent(r.Context(), &service.RoomEventRequest{
		Type:         req.Type,
		RoomID:       r.PathValue("room_id"),
		UserID:       req.UserID,
		UserName:     req.UserName,
		Participants: req.Participants,
		Room:         req.Room,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, nil)
}
