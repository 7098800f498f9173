package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	connections := 0
	if a.Hub != nil {
		connections = a.Hub.ConnectionCount()
	}
	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			a.Log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "connections": connections})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": connections})
}
