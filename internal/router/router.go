package router

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"je-portal/backend/internal/auth"
	"je-portal/backend/internal/handlers"
	"je-portal/backend/internal/middleware"
	"je-portal/backend/internal/realtime"
)

type Router struct {
	api     *handlers.API
	auth    *auth.Service
	limiter middleware.Limiter
	origin  string
	ws      *realtime.Server
	metrics http.Handler
}

func New(api *handlers.API, authService *auth.Service, limiter middleware.Limiter, origin string, ws *realtime.Server) *Router {
	return &Router{
		api:     api,
		auth:    authService,
		limiter: limiter,
		origin:  origin,
		ws:      ws,
		metrics: promhttp.Handler(),
	}
}

// routes is every path the router serves; anything else is reported as unmatched.
var routes = map[string]struct{}{
	"/healthz":                          {},
	"/metrics":                          {},
	"/api/v1/ws":                        {},
	"/api/v1/auth/login":                {},
	"/api/v1/auth/logout":               {},
	"/api/v1/auth/me":                   {},
	"/api/v1/users":                     {},
	"/api/v1/messages":                  {},
	"/api/v1/messages/mark-read":        {},
	"/api/v1/messages/unread-count":     {},
	"/api/v1/messages/unread-by-sender": {},
	"/api/v1/notifications":             {},
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}
	if _, ok := routes[path]; ok {
		middleware.SetRoute(w, path)
	}

	if middleware.HandleCORS(w, r, rt.origin) {
		return
	}
	middleware.SecurityHeaders(w)

	switch path {
	case "/healthz":
		if r.Method == http.MethodGet {
			rt.api.Health(w, r)
			return
		}
	case "/metrics":
		if r.Method == http.MethodGet {
			rt.metrics.ServeHTTP(w, r)
			return
		}
	case "/api/v1/ws":
		if r.Method == http.MethodGet && rt.ws != nil {
			rt.serveWS(w, r)
			return
		}
	}

	if requiresAuth(path) {
		user, err := middleware.Authenticate(r, rt.auth)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !rt.allow(r, "user:"+user.ID) {
			writeStatus(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		// bearer clients are not exposed to cross-site requests
		if r.Header.Get("Authorization") == "" {
			if err := middleware.ValidateCSRF(r, user); err != nil {
				writeStatus(w, http.StatusForbidden, "invalid csrf token")
				return
			}
		}
		r = r.WithContext(auth.WithUser(r.Context(), user))
	} else if !rt.allow(r, "ip:"+middleware.ClientKey(r)) {
		writeStatus(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	switch path {
	case "/api/v1/auth/login":
		if r.Method == http.MethodPost {
			rt.api.Login(w, r)
			return
		}
	case "/api/v1/auth/logout":
		if r.Method == http.MethodPost {
			rt.api.Logout(w, r)
			return
		}
	case "/api/v1/auth/me":
		if r.Method == http.MethodGet {
			rt.api.Me(w, r)
			return
		}
	case "/api/v1/users":
		if r.Method == http.MethodGet {
			rt.api.ListUsers(w, r)
			return
		}
	case "/api/v1/messages":
		switch r.Method {
		case http.MethodGet:
			rt.api.ListConversation(w, r)
			return
		case http.MethodPost:
			rt.api.SendMessage(w, r)
			return
		}
	case "/api/v1/messages/mark-read":
		if r.Method == http.MethodPost {
			rt.api.MarkMessagesRead(w, r)
			return
		}
	case "/api/v1/messages/unread-count":
		if r.Method == http.MethodGet {
			rt.api.UnreadCount(w, r)
			return
		}
	case "/api/v1/messages/unread-by-sender":
		if r.Method == http.MethodGet {
			rt.api.UnreadBySender(w, r)
			return
		}
	case "/api/v1/notifications":
		switch r.Method {
		case http.MethodGet:
			rt.api.ListNotifications(w, r)
			return
		case http.MethodPost:
			rt.api.CreateNotification(w, r)
			return
		case http.MethodPut:
			rt.api.UpdateNotifications(w, r)
			return
		case http.MethodDelete:
			rt.api.DeleteNotification(w, r)
			return
		}
	}

	writeStatus(w, http.StatusNotFound, "not found")
}

// serveWS binds the socket to the identity in the session token. A userId
// query parameter is tolerated only when it names that same user.
func (rt *Router) serveWS(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.AuthenticateHandshake(r, rt.auth)
	if err != nil {
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if claimed := r.URL.Query().Get("userId"); claimed != "" && claimed != user.ID {
		writeStatus(w, http.StatusForbidden, "forbidden")
		return
	}
	rt.ws.Serve(w, r, user.ID)
}

func (rt *Router) allow(r *http.Request, key string) bool {
	if rt.limiter == nil {
		return true
	}
	return rt.limiter.Allow(r.Context(), key)
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("{\"error\":\"" + message + "\"}"))
}

func requiresAuth(path string) bool {
	switch path {
	case "/api/v1/auth/login":
		return false
	default:
		return strings.HasPrefix(path, "/api/v1/")
	}
}
