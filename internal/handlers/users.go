package handlers

import (
	"context"
	"net/http"
)

func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	users, err := a.Users.ListExcept(ctx, current.ID)
	if err != nil {
		a.writeAppError(w, r, err, "failed to load users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}
