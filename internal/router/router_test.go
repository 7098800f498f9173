package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"je-portal/backend/internal/auth"
	"je-portal/backend/internal/handlers"
	"je-portal/backend/internal/messaging"
	"je-portal/backend/internal/middleware"
	"je-portal/backend/internal/models"
	"je-portal/backend/internal/notify"
	"je-portal/backend/internal/realtime"
	"je-portal/backend/internal/store"
)

type directory map[string]models.User

func (d directory) Get(_ context.Context, id string) (models.User, error) {
	if u, ok := d[id]; ok {
		return u, nil
	}
	return models.User{}, store.ErrNotFound
}

func (d directory) GetByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range d {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (d directory) ListExcept(_ context.Context, id string) ([]models.User, error) {
	return []models.User{}, nil
}

func (d directory) ListByRole(_ context.Context, role models.Role) ([]models.User, error) {
	return []models.User{}, nil
}

type inbox struct {
	mu   sync.Mutex
	sent []models.Message
}

func (i *inbox) Insert(_ context.Context, msg models.Message) (models.Message, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	msg.ID = "m1"
	i.sent = append(i.sent, msg)
	return msg, nil
}

func (i *inbox) Conversation(context.Context, string, string) ([]models.Message, error) {
	return []models.Message{}, nil
}

func (i *inbox) MarkReadFromSender(context.Context, string, string) (int64, error) { return 0, nil }
func (i *inbox) UnreadCount(context.Context, string) (int64, error)                { return 0, nil }
func (i *inbox) UnreadBySender(context.Context, string) ([]models.SenderUnread, error) {
	return []models.SenderUnread{}, nil
}

type nopNotifications struct{}

func (nopNotifications) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	return n, nil
}
func (nopNotifications) Get(context.Context, string) (models.Notification, error) {
	return models.Notification{}, store.ErrNotFound
}
func (nopNotifications) ListForUser(context.Context, string, int) ([]models.Notification, error) {
	return []models.Notification{}, nil
}
func (nopNotifications) MarkRead(context.Context, string) error               { return store.ErrNotFound }
func (nopNotifications) MarkAllRead(context.Context, string) (int64, error)   { return 0, nil }
func (nopNotifications) Delete(context.Context, string) error                 { return store.ErrNotFound }
func (nopNotifications) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type harness struct {
	server *httptest.Server
	auth   *auth.Service
	hub    *realtime.Hub
}

func newHarness(t *testing.T, limiter middleware.Limiter) harness {
	t.Helper()
	users := directory{
		"u1": {ID: "u1", Name: "Alice", Email: "alice@je.fr", Role: models.RoleRJE},
		"u2": {ID: "u2", Name: "Bob", Email: "bob@je.fr", Role: models.RoleAdmin},
	}
	authService, err := auth.NewService("router-secret", time.Hour)
	require.NoError(t, err)
	hub := realtime.NewHub(nil)
	handle := realtime.NewHandle()
	handle.Install(hub)

	api := handlers.NewAPI(users, authService,
		notify.NewService(nopNotifications{}, users, handle, nil),
		messaging.NewService(&inbox{}, handle, nil), nil)
	api.Hub = hub

	rt := New(api, authService, limiter, "http://localhost:3000", realtime.NewServer(hub, nil, "http://localhost:3000", 8))
	server := httptest.NewServer(middleware.Instrument(rt, zap.NewNop()))
	t.Cleanup(server.Close)
	return harness{server: server, auth: authService, hub: hub}
}

func (h harness) token(t *testing.T, id string, csrf string) string {
	t.Helper()
	token, err := h.auth.GenerateToken(models.User{ID: id}, csrf)
	require.NoError(t, err)
	return token
}

func (h harness) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/ws" + query
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.server.URL + "/api/v1/messages/unread-count")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.wsURL("?userId=u1"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketRejectsForeignUserID(t *testing.T) {
	h := newHarness(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("?token="+h.token(t, "u1", "c")+"&userId=u2"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, h.hub.Online("u2"))
}

func TestMessageReachesReceiverSocket(t *testing.T) {
	h := newHarness(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("?token="+h.token(t, "u2", "c")+"&userId=u2"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.hub.Online("u2") }, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/api/v1/messages", bytes.NewBufferString(`{"receiverId":"u2","content":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "u1", "c"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, realtime.EventNewMessage, env.Event)
	assert.Contains(t, string(env.Data), `"content":"hi"`)
}

func TestCookieSessionRequiresCSRF(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "u1", "csrf-value")

	send := func(csrf string) int {
		req, err := http.NewRequest(http.MethodPost, h.server.URL+"/api/v1/messages", bytes.NewBufferString(`{"receiverId":"u2","content":"hi"}`))
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
		if csrf != "" {
			req.Header.Set("X-CSRF-Token", csrf)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusForbidden, send(""))
	assert.Equal(t, http.StatusCreated, send("csrf-value"))
}

func TestRateLimitApplies(t *testing.T) {
	h := newHarness(t, middleware.NewRateLimiter(1, time.Minute))
	get := func() int {
		req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/messages/unread-count", nil)
		req.Header.Set("Authorization", "Bearer "+h.token(t, "u1", "c"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())
}

func TestUnknownRouteAndHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/v1/nothing", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "u1", "c"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func routeLabels(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "http_request_duration_seconds" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "route" {
					seen[label.GetValue()] = true
				}
			}
		}
	}
	return seen
}

func TestRequestMetricsUseRoutePatterns(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/scan-a", "/scan-b/c", "/api/v1/scan-d", "/healthz/"} {
		resp, err := http.Get(h.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	labels := routeLabels(t)
	assert.True(t, labels["/healthz"])
	assert.True(t, labels[middleware.RouteUnmatched])
	for label := range labels {
		assert.NotContains(t, label, "scan")
	}
}
