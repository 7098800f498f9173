package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"je-portal/backend/internal/auth"
	"je-portal/backend/internal/middleware"
	"je-portal/backend/internal/store"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeAppError(w, r, err, "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := a.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		a.writeAppError(w, r, err, "failed to login")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	csrf, err := auth.GenerateCSRFToken()
	if err != nil {
		a.writeAppError(w, r, err, "failed to login")
		return
	}
	token, err := a.Auth.GenerateToken(user, csrf)
	if err != nil {
		a.writeAppError(w, r, err, "failed to login")
		return
	}
	a.setSessionCookie(w, token, a.Auth.TTL())

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"csrfToken": csrf,
		"user":      user,
	})
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	user, err := a.Users.Get(ctx, current.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		a.writeAppError(w, r, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
