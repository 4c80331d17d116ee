package handler

import (
	"net/http"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
)

// HandleCreateSession handles POST /sessions.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	md := make(map[string]string, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md[domain.SessionMetaIPAddress] = ClientIP(r)
	if ua := r.UserAgent(); ua != "" {
		md[domain.SessionMetaUserAgent] = ua
	}
	if req.DeviceID != "" {
		md[domain.SessionMetaDeviceID] = req.DeviceID
	}

	res, err := h.sessions.Create(r.Context(), req.UserID, md)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, CreateSessionResponse{
		SessionID: res.SessionID,
		ExpiresIn: res.ExpiresIn,
		ExpiresAt: res.Session.ExpiresAt,
	})
}

// HandleValidateSession handles POST /sessions/validate.
func (h *Handler) HandleValidateSession(w http.ResponseWriter, r *http.Request) {
	var req ValidateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.sessions.Validate(r.Context(), req.UserID, req.SessionID)
	resp := ValidateSessionResponse{
		Valid:         res.Valid,
		Code:          res.Code,
		Message:       res.Message,
		RequiresLogin: res.RequiresLogin(),
	}
	if res.Valid && res.Session != nil {
		if req.Touch {
			h.sessions.Touch(r.Context(), req.UserID)
		}
		resp.ExpiresAt = res.Session.ExpiresAt
		resp.LastActivity = res.Session.LastActivity
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// HandleTouchSession handles POST /sessions/touch.
func (h *Handler) HandleTouchSession(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "user_id is required")
		return
	}
	h.sessions.Touch(r.Context(), req.UserID)
	h.writeJSON(w, r, http.StatusOK, nil)
}

// HandleRemoveSession handles POST /sessions/remove.
func (h *Handler) HandleRemoveSession(w http.ResponseWriter, r *http.Request) {
	var req RemoveSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.sessions.Remove(r.Context(), req.UserID, req.SessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, nil)
}
