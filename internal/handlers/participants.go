package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scottschroeder/storyestimate/internal/auth"
)

func (h *Handlers) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	var req NicknameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Nickname == nil {
		h.respondError(w, BadRequest("Please provide nickname to update session"))
		return
	}

	ctx := r.Context()
	err := h.Sessions.Join(ctx,
		chi.URLParam(r, "sessionID"),
		chi.URLParam(r, "userID"),
		auth.UserFromContext(ctx),
		*req.Nickname)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondEmpty(w)
}

func (h *Handlers) handlePlaceVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Vote == nil {
		h.respondError(w, BadRequest("Please provide a vote"))
		return
	}

	ctx := r.Context()
	err := h.Sessions.Vote(ctx,
		chi.URLParam(r, "sessionID"),
		chi.URLParam(r, "userID"),
		auth.UserFromContext(ctx),
		*req.Vote)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondEmpty(w)
}

func (h *Handlers) handleKickUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.Sessions.Kick(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "userID"), auth.UserFromContext(ctx))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondEmpty(w)
}

func (h *Handlers) handleGrantAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.Sessions.GrantAdmin(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "userID"), auth.UserFromContext(ctx))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondEmpty(w)
}

func (h *Handlers) handleRevokeAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := h.Sessions.RevokeAdmin(ctx, chi.URLParam(r, "sessionID"), chi.URLParam(r, "userID"), auth.UserFromContext(ctx))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondEmpty(w)
}
