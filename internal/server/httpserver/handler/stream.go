package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/chatmesh-go/internal/core/domain"
	"github.com/yndnr/chatmesh-go/internal/delivery"
)

// HandleStream handles GET /rooms/{room_id}/stream. It joins the local
// hub and writes delivered events as server-sent events until the client
// goes away or the session is ended by a newer login.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		h.writeError(w, r, http.StatusUnauthorized, domain.ErrSessionNotFound.Code, "session required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, "streaming unsupported")
		return
	}

	sub := h.hub.Join(r.PathValue("room_id"), session.UserID)
	defer h.hub.Leave(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			ended, skip := sessionEnded(ev, session)
			if skip {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				h.log.Debug("stream write failed", "user_id", session.UserID, "error", err)
				return
			}
			flusher.Flush()
			if ended {
				return
			}
		}
	}
}

// sessionEnded inspects a session_ended event. The event is addressed to
// every stream of the user, but only the streams of the replaced session
// should see it and close.
func sessionEnded(ev delivery.Event, current *domain.Session) (ended, skip bool) {
	if ev.Name != string(domain.EventSessionEnded) {
		return false, false
	}
	p, ok := ev.Payload.(domain.SessionEndedPayload)
	if !ok {
		return false, true
	}
	if p.SessionID != "" && p.SessionID != current.SessionID {
		return false, true
	}
	return true, false
}

func writeEvent(w http.ResponseWriter, ev delivery.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
