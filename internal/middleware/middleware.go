package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"je-portal/backend/internal/auth"
)

const (
	csrfHeader = "X-CSRF-Token"
	// SessionCookie carries the session token for browser clients.
	SessionCookie = "session"
)

var (
	ErrMissingToken = errors.New("missing authorization")
	ErrMalformed    = errors.New("invalid authorization")
)

func HandleCORS(w http.ResponseWriter, r *http.Request, allowedOrigin string) bool {
	if allowedOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func SecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrMalformed
	}
	return strings.TrimSpace(parts[1]), nil
}

// Authenticate verifies the session token from the Authorization header or,
// failing that, the session cookie.
func Authenticate(r *http.Request, service *auth.Service) (auth.User, error) {
	token, err := bearerToken(r)
	if errors.Is(err, ErrMissingToken) {
		if cookie, cookieErr := r.Cookie(SessionCookie); cookieErr == nil && cookie.Value != "" {
			return service.ParseToken(cookie.Value)
		}
	}
	if err != nil {
		return auth.User{}, err
	}
	return service.ParseToken(token)
}

// AuthenticateHandshake is Authenticate plus the ?token= query parameter,
// since browsers cannot set headers on a websocket upgrade.
func AuthenticateHandshake(r *http.Request, service *auth.Service) (auth.User, error) {
	user, err := Authenticate(r, service)
	if errors.Is(err, ErrMissingToken) {
		if token := r.URL.Query().Get("token"); token != "" {
			return service.ParseToken(token)
		}
	}
	return user, err
}

func ValidateCSRF(r *http.Request, user auth.User) error {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		value := r.Header.Get(csrfHeader)
		if value == "" || value != user.CSRF {
			return errors.New("invalid csrf token")
		}
	}
	return nil
}

func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
