package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"je-portal/backend/internal/models"
)

var ErrUnauthorized = errors.New("unauthorized")

// API is a thin REST client for the portal backend.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// WebsocketURL derives the realtime endpoint from the REST base URL.
func (a *API) WebsocketURL(userID string) string {
	base := a.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v1/ws?userId=" + url.QueryEscape(userID)
}

func (a *API) get(ctx context.Context, token, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, body.Error)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (a *API) Me(ctx context.Context, token string) (models.User, error) {
	var body struct {
		User models.User `json:"user"`
	}
	err := a.get(ctx, token, "/api/v1/auth/me", &body)
	return body.User, err
}

func (a *API) UnreadCount(ctx context.Context, token string) (int64, error) {
	var body struct {
		Count int64 `json:"count"`
	}
	err := a.get(ctx, token, "/api/v1/messages/unread-count", &body)
	return body.Count, err
}

func (a *API) UnreadBySender(ctx context.Context, token string) ([]models.SenderUnread, error) {
	var body struct {
		Data []models.SenderUnread `json:"data"`
	}
	err := a.get(ctx, token, "/api/v1/messages/unread-by-sender", &body)
	return body.Data, err
}

func (a *API) Conversation(ctx context.Context, token, otherUserID string) ([]models.Message, error) {
	var body struct {
		Data []models.Message `json:"data"`
	}
	err := a.get(ctx, token, "/api/v1/messages?otherUserId="+url.QueryEscape(otherUserID), &body)
	return body.Data, err
}

func (a *API) Notifications(ctx context.Context, token string, limit int) ([]models.Notification, error) {
	var body struct {
		Data []models.Notification `json:"data"`
	}
	err := a.get(ctx, token, "/api/v1/notifications?limit="+strconv.Itoa(limit), &body)
	return body.Data, err
}
