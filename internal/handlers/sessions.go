package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scottschroeder/storyestimate/internal/auth"
	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/randx"
)

// sessionParam reads the session id from the path. Ids that could never have
// been generated answer 404 without a backend round trip.
func (h *Handlers) sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if !randx.IsSessionID(sessionID) {
		h.respondError(w, NotFound("Session not found: "+sessionID))
		return "", false
	}
	return sessionID, true
}

func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := h.Sessions.Create(ctx, auth.UserFromContext(ctx))
	if err != nil {
		h.respondError(w, err)
		return
	}

	public, err := h.Sessions.Lookup(ctx, sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if public == nil {
		h.respondError(w, errors.Internalf("session %s vanished after creation", sessionID))
		return
	}
	respondOK(w, public)
}

func (h *Handlers) handleLookupSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionParam(w, r)
	if !ok {
		return
	}
	public, err := h.Sessions.Lookup(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if public == nil {
		h.respondError(w, NotFound("Session not found: "+sessionID))
		return
	}
	respondOK(w, public)
}

func (h *Handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Sessions.Delete(ctx, chi.URLParam(r, "sessionID"), auth.UserFromContext(ctx)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionStateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.State == nil {
		h.respondError(w, BadRequest("Please provide a state for the session"))
		return
	}

	ctx := r.Context()
	if err := h.Sessions.Update(ctx, chi.URLParam(r, "sessionID"), *req.State, auth.UserFromContext(ctx)); err != nil {
		h.respondError(w, err)
		return
	}
	respondEmpty(w)
}

func (h *Handlers) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionParam(w, r)
	if !ok {
		return
	}
	png, err := h.Sessions.JoinQRCode(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (h *Handlers) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionParam(w, r)
	if !ok {
		return
	}
	public, err := h.Sessions.Lookup(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if public == nil {
		h.respondError(w, NotFound("Session not found: "+sessionID))
		return
	}
	h.Hub.ServeSession(w, r, sessionID)
}
