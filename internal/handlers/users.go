package handlers

import (
	"net/http"
)

func (h *Handlers) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.CreateUser(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, user)
}

// handleCheckUser answers 200 when the credentials are valid; RequireUser
// rejects everything else.
func (h *Handlers) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	respondEmpty(w)
}
