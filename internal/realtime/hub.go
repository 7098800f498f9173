package realtime

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"je-portal/backend/internal/metrics"
)

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrClientClosed  = errors.New("client closed")
)

// Client is one live connection. Its outbound queue is closed by Hub.Leave.
type Client struct {
	ID     string
	UserID string

	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		rooms:  map[string]struct{}{},
	}
}

// Send is the connection's outbound queue.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub keeps the per-user rooms. A user may hold any number of connections and
// every one of them receives what is emitted to that user.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]struct{}
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:   map[string]map[*Client]struct{}{},
		members: map[*Client]struct{}{},
		log:     log.Named("hub"),
	}
}

// ValidUserID rejects absent identities, including the literal strings a
// not-yet-loaded browser client tends to send.
func ValidUserID(userID string) bool {
	trimmed := strings.TrimSpace(userID)
	return trimmed != "" && trimmed != "null" && trimmed != "undefined"
}

// Join adds client to the room of userID. Joining the same room twice is a no-op.
func (h *Hub) Join(client *Client, userID string) error {
	if !ValidUserID(userID) {
		return ErrInvalidUserID
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return ErrClientClosed
	}
	if h.rooms[userID] == nil {
		h.rooms[userID] = map[*Client]struct{}{}
	}
	h.rooms[userID][client] = struct{}{}
	client.rooms[userID] = struct{}{}
	if _, ok := h.members[client]; !ok {
		h.members[client] = struct{}{}
		metrics.ConnectionsActive.Inc()
	}
	h.log.Debug("client joined", zap.String("client_id", client.ID), zap.String("user_id", userID))
	return nil
}

// Leave removes client from every room and closes its queue. It is safe for a
// client that never joined and safe to repeat.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.closed {
		return
	}
	for room := range client.rooms {
		if clients, ok := h.rooms[room]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.rooms = map[string]struct{}{}
	if _, ok := h.members[client]; ok {
		delete(h.members, client)
		metrics.ConnectionsActive.Dec()
	}
	client.closed = true
	close(client.send)
	h.log.Debug("client left", zap.String("client_id", client.ID), zap.String("user_id", client.UserID))
}

// EmitToUser delivers payload to every connection joined to userID. Delivery
// never blocks: a connection whose queue is full misses the event.
func (h *Hub) EmitToUser(userID, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(userID, event, frame, true)
}

// deliver queues frame on userID's local connections. countAbsent records a
// no_connections drop when the user has none here; bridged deliveries pass
// false because another instance may hold the user.
func (h *Hub) deliver(userID, event string, frame []byte, countAbsent bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.rooms[userID]
	if len(clients) == 0 {
		if countAbsent {
			metrics.EventsDropped.WithLabelValues(metrics.DropNoConnections).Inc()
		}
		return 0
	}
	delivered := 0
	for client := range clients {
		select {
		case client.send <- frame:
			delivered++
		default:
			metrics.EventsDropped.WithLabelValues(metrics.DropBufferFull).Inc()
			h.log.Warn("client queue full, event dropped",
				zap.String("client_id", client.ID), zap.String("event", event))
		}
	}
	if delivered > 0 {
		metrics.EventsEmitted.WithLabelValues(event).Inc()
	}
	return delivered
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}
