package handlers

import (
	"context"
	"errors"
	"net/http"

	"je-portal/backend/internal/apperr"
	"je-portal/backend/internal/models"
	"je-portal/backend/internal/notify"
	"je-portal/backend/internal/store"
)

type createNotificationRequest struct {
	Message string `json:"message" validate:"required"`
	UserID  string `json:"userId"`
}

type updateNotificationRequest struct {
	ID  string `json:"id"`
	All bool   `json:"all"`
}

func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	items, err := a.Notify.List(ctx, user.ID, parseLimit(r, notify.DefaultListLimit))
	if err != nil {
		a.writeAppError(w, r, err, "failed to load notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

// CreateNotification notifies every admin, or one user when userId is given.
// Targeting a specific user is reserved to admins.
func (a *API) CreateNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createNotificationRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeAppError(w, r, err, "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if req.UserID == "" {
		results, err := a.Notify.NotifyAllAdmins(ctx, req.Message)
		if err != nil {
			a.writeAppError(w, r, err, "failed to notify admins")
			return
		}
		created := []models.Notification{}
		for _, n := range results {
			if n != nil {
				created = append(created, *n)
			}
		}
		writeJSON(w, http.StatusCreated, map[string]any{"data": created})
		return
	}

	if !user.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if _, err := a.Users.Get(ctx, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		a.writeAppError(w, r, err, "failed to load user")
		return
	}
	n := a.Notify.Notify(ctx, req.UserID, req.Message)
	if n == nil {
		writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": n})
}

func (a *API) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req updateNotificationRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if req.All {
		updated, err := a.Notify.MarkAllRead(ctx, user.ID)
		if err != nil {
			a.writeAppError(w, r, err, "failed to update notifications")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
		return
	}
	if req.ID == "" {
		a.writeAppError(w, r, apperr.Validation("missing field"), "invalid request")
		return
	}
	if err := a.Notify.MarkRead(ctx, req.ID, user.ID); err != nil {
		a.writeAppError(w, r, err, "failed to update notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		a.writeAppError(w, r, apperr.Validation("missing field"), "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := a.Notify.Delete(ctx, id, user.ID); err != nil {
		a.writeAppError(w, r, err, "failed to delete notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
