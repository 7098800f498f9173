package handlers

import (
	"context"
	"net/http"

	"je-portal/backend/internal/apperr"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

type markReadRequest struct {
	SenderID string `json:"senderId" validate:"required"`
}

func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req sendMessageRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeAppError(w, r, err, "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msg, err := a.Messaging.Send(ctx, user.ID, req.ReceiverID, req.Content)
	if err != nil {
		a.writeAppError(w, r, err, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) ListConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	otherUserID := r.URL.Query().Get("otherUserId")
	if otherUserID == "" {
		a.writeAppError(w, r, apperr.Validation("missing field"), "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	thread, err := a.Messaging.ListConversation(ctx, user.ID, otherUserID)
	if err != nil {
		a.writeAppError(w, r, err, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": thread})
}

func (a *API) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req markReadRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeAppError(w, r, err, "invalid request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	updated, err := a.Messaging.MarkReadFromSender(ctx, user.ID, req.SenderID)
	if err != nil {
		a.writeAppError(w, r, err, "failed to mark messages read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (a *API) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	count, err := a.Messaging.UnreadCount(ctx, user.ID)
	if err != nil {
		a.writeAppError(w, r, err, "failed to count unread messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (a *API) UnreadBySender(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	items, err := a.Messaging.UnreadCountBySender(ctx, user.ID)
	if err != nil {
		a.writeAppError(w, r, err, "failed to count unread messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}
