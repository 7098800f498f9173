package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"je-portal/backend/internal/models"
	"je-portal/backend/internal/realtime"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is what a signed-in tab knows about itself.
type Session struct {
	Token string
}

// notificationWindow is how many persisted notifications a new connection loads.
const notificationWindow = 50

// Alerter surfaces an incoming event to the person at the keyboard.
type Alerter func(title, body string)

// Binding keeps one realtime connection per signed-in session and folds the
// pushed events into local state. It never reconnects on its own.
type Binding struct {
	api    *API
	dialer *websocket.Dialer
	alert  Alerter
	log    *zap.Logger

	mu             sync.Mutex
	state          State
	session        Session
	userID         string
	conn           *websocket.Conn
	generation     int
	notifications  []models.Notification
	badge          int
	openThread     string
	thread         []models.Message
	seen           map[string]struct{}
	unreadCount    int64
	unreadBySender map[string]int64
}

func NewBinding(api *API, alert Alerter, log *zap.Logger) *Binding {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binding{
		api:            api,
		dialer:         websocket.DefaultDialer,
		alert:          alert,
		log:            log.Named("binding"),
		seen:           map[string]struct{}{},
		unreadBySender: map[string]int64{},
	}
}

// SetSession drops any current connection along with everything loaded for
// the previous user and, when the session identifies a user, opens exactly
// one connection for that user seeded from persisted state.
func (b *Binding) SetSession(ctx context.Context, session Session) error {
	b.mu.Lock()
	b.disconnectLocked()
	b.resetLocked()
	b.session = session
	b.userID = ""
	if session.Token == "" {
		b.mu.Unlock()
		return nil
	}
	b.state = Connecting
	generation := b.generation
	b.mu.Unlock()

	me, err := b.api.Me(ctx, session.Token)
	if err != nil || me.ID == "" {
		b.settleFailed(generation)
		return err
	}

	header := http.Header{"Authorization": []string{"Bearer " + session.Token}}
	conn, _, err := b.dialer.DialContext(ctx, b.api.WebsocketURL(me.ID), header)
	if err != nil {
		b.settleFailed(generation)
		return err
	}

	snap := b.load(ctx, session.Token)

	b.mu.Lock()
	if b.generation != generation {
		// superseded by another SetSession or Close
		b.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	b.userID = me.ID
	b.conn = conn
	b.state = Connected
	b.applyLocked(snap)
	b.mu.Unlock()

	go b.readLoop(conn, generation)
	return nil
}

func (b *Binding) settleFailed(generation int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation == generation {
		b.state = Disconnected
	}
}

// Close tears the binding down; it stays disconnected until SetSession.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectLocked()
	b.resetLocked()
	b.session = Session{}
	b.userID = ""
}

func (b *Binding) resetLocked() {
	b.notifications = nil
	b.badge = 0
	b.openThread = ""
	b.thread = nil
	b.seen = map[string]struct{}{}
	b.unreadCount = 0
	b.unreadBySender = map[string]int64{}
}

// snapshot is the persisted state a connection starts from. Events sent
// while the user was offline only show up here.
type snapshot struct {
	notifications []models.Notification
	unread        int64
	bySender      []models.SenderUnread
}

func (b *Binding) load(ctx context.Context, token string) snapshot {
	var snap snapshot
	var err error
	if snap.notifications, err = b.api.Notifications(ctx, token, notificationWindow); err != nil {
		b.log.Warn("load notifications failed", zap.Error(err))
	}
	if snap.unread, err = b.api.UnreadCount(ctx, token); err != nil {
		b.log.Warn("load unread count failed", zap.Error(err))
	}
	if snap.bySender, err = b.api.UnreadBySender(ctx, token); err != nil {
		b.log.Warn("load unread by sender failed", zap.Error(err))
	}
	return snap
}

func (b *Binding) applyLocked(snap snapshot) {
	b.notifications = append([]models.Notification(nil), snap.notifications...)
	b.badge = 0
	for _, n := range snap.notifications {
		if !n.IsRead {
			b.badge++
		}
	}
	b.unreadCount = snap.unread
	b.unreadBySender = make(map[string]int64, len(snap.bySender))
	for _, item := range snap.bySender {
		b.unreadBySender[item.SenderID] = item.Count
	}
}

func (b *Binding) disconnectLocked() {
	b.generation++
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.state = Disconnected
}

func (b *Binding) readLoop(conn *websocket.Conn, generation int) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			if b.generation == generation {
				b.conn = nil
				b.state = Disconnected
			}
			b.mu.Unlock()
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			b.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		b.handle(env, generation)
	}
}

func (b *Binding) handle(env realtime.Envelope, generation int) {
	switch env.Event {
	case realtime.EventNotification:
		var n models.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return
		}
		b.mu.Lock()
		if b.generation != generation {
			b.mu.Unlock()
			return
		}
		if b.hasNotificationLocked(n.ID) {
			b.mu.Unlock()
			return
		}
		b.notifications = append([]models.Notification{n}, b.notifications...)
		b.badge++
		b.mu.Unlock()
		b.raise("New notification", n.Message)

	case realtime.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		b.mu.Lock()
		if b.generation != generation {
			b.mu.Unlock()
			return
		}
		if b.inOpenThreadLocked(msg) {
			if _, dup := b.seen[msg.ID]; !dup {
				b.seen[msg.ID] = struct{}{}
				b.thread = append(b.thread, msg)
			}
			b.mu.Unlock()
			return
		}
		b.unreadBySender[msg.SenderID]++
		b.unreadCount++
		b.mu.Unlock()
		title := "New message"
		if msg.Sender != nil && msg.Sender.Name != "" {
			title = "New message from " + msg.Sender.Name
		}
		b.raise(title, msg.Content)

	case realtime.EventMessagesRead:
		b.refreshUnread(generation)
	}
}

// hasNotificationLocked catches an event that raced the initial load.
func (b *Binding) hasNotificationLocked(id string) bool {
	for _, n := range b.notifications {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (b *Binding) inOpenThreadLocked(msg models.Message) bool {
	if b.openThread == "" {
		return false
	}
	return (msg.SenderID == b.openThread && msg.ReceiverID == b.userID) ||
		(msg.SenderID == b.userID && msg.ReceiverID == b.openThread)
}

func (b *Binding) raise(title, body string) {
	if b.alert != nil {
		b.alert(title, body)
	}
}

func (b *Binding) refreshUnread(generation int) {
	b.mu.Lock()
	token := b.session.Token
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	count, err := b.api.UnreadCount(ctx, token)
	if err != nil {
		b.log.Warn("refresh unread count failed", zap.Error(err))
		return
	}
	bySender, err := b.api.UnreadBySender(ctx, token)
	if err != nil {
		b.log.Warn("refresh unread by sender failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != generation {
		return
	}
	b.unreadCount = count
	b.unreadBySender = make(map[string]int64, len(bySender))
	for _, item := range bySender {
		b.unreadBySender[item.SenderID] = item.Count
	}
}

// OpenThread loads the conversation with otherUserID and makes it the thread
// that live messages are appended to.
func (b *Binding) OpenThread(ctx context.Context, otherUserID string) error {
	b.mu.Lock()
	token := b.session.Token
	generation := b.generation
	b.mu.Unlock()

	thread, err := b.api.Conversation(ctx, token, otherUserID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != generation {
		return nil
	}
	b.openThread = otherUserID
	b.thread = thread
	b.seen = make(map[string]struct{}, len(thread))
	for _, msg := range thread {
		b.seen[msg.ID] = struct{}{}
	}
	return nil
}

func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Binding) UserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}

func (b *Binding) Notifications() []models.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Notification(nil), b.notifications...)
}

func (b *Binding) Badge() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.badge
}

func (b *Binding) ClearBadge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.badge = 0
}

func (b *Binding) Thread() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Message(nil), b.thread...)
}

func (b *Binding) UnreadCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unreadCount
}

func (b *Binding) UnreadFrom(senderID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unreadBySender[senderID]
}
