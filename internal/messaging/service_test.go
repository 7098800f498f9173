package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"je-portal/backend/internal/apperr"
	"je-portal/backend/internal/models"
	"je-portal/backend/internal/realtime"
	"je-portal/backend/internal/store"
)

type memoryMessages struct {
	mu        sync.Mutex
	users     map[string]string
	messages  []models.Message
	failWrite error
}

func newMemoryMessages(users ...string) *memoryMessages {
	m := &memoryMessages{users: map[string]string{}}
	for _, u := range users {
		m.users[u] = "name-" + u
	}
	return m
}

func (m *memoryMessages) Insert(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return models.Message{}, m.failWrite
	}
	sender, ok := m.users[msg.SenderID]
	if !ok {
		return models.Message{}, store.ErrSenderNotFound
	}
	receiver, ok := m.users[msg.ReceiverID]
	if !ok {
		return models.Message{}, store.ErrNotFound
	}
	msg.ID = fmt.Sprintf("m%d", len(m.messages)+1)
	msg.Sender = &models.Party{ID: msg.SenderID, Name: sender}
	msg.Receiver = &models.Party{ID: msg.ReceiverID, Name: receiver}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memoryMessages) Conversation(_ context.Context, a, b string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for _, msg := range m.messages {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryMessages) MarkReadFromSender(_ context.Context, receiverID, senderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return 0, m.failWrite
	}
	var count int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ReceiverID == receiverID && msg.SenderID == senderID && !msg.IsRead {
			msg.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *memoryMessages) UnreadCount(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, msg := range m.messages {
		if msg.ReceiverID == userID && !msg.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memoryMessages) UnreadBySender(_ context.Context, userID string) ([]models.SenderUnread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{}
	for _, msg := range m.messages {
		if msg.ReceiverID == userID && !msg.IsRead {
			counts[msg.SenderID]++
		}
	}
	out := []models.SenderUnread{}
	for sender, count := range counts {
		out = append(out, models.SenderUnread{SenderID: sender, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out, nil
}

func nextFrame(t *testing.T, client *realtime.Client) realtime.Envelope {
	t.Helper()
	select {
	case frame := <-client.Send():
		var env realtime.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame")
		return realtime.Envelope{}
	}
}

func TestSendDeliversToReceiverOnly(t *testing.T) {
	hub := realtime.NewHub(nil)
	receiverTab := realtime.NewClient("u2", 4)
	senderTab := realtime.NewClient("u1", 4)
	require.NoError(t, hub.Join(receiverTab, "u2"))
	require.NoError(t, hub.Join(senderTab, "u1"))

	svc := NewService(newMemoryMessages("u1", "u2"), hub, nil)
	msg, err := svc.Send(context.Background(), "u1", "u2", "hi")
	require.NoError(t, err)
	assert.False(t, msg.IsRead)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "name-u1", msg.Sender.Name)

	env := nextFrame(t, receiverTab)
	assert.Equal(t, realtime.EventNewMessage, env.Event)
	var pushed models.Message
	require.NoError(t, json.Unmarshal(env.Data, &pushed))
	assert.Equal(t, msg.ID, pushed.ID)
	assert.Equal(t, "hi", pushed.Content)
	assert.Empty(t, senderTab.Send())
}

func TestSendValidation(t *testing.T) {
	svc := NewService(newMemoryMessages("u1", "u2"), nil, nil)

	_, err := svc.Send(context.Background(), "u1", "", "hi")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Send(context.Background(), "u1", "u2", "   ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Send(context.Background(), "u1", "ghost", "hi")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "receiver not found", apperr.PublicMessage(err, ""))
}

func TestSendFromDeletedUserIsUnauthenticated(t *testing.T) {
	svc := NewService(newMemoryMessages("u2"), nil, nil)
	_, err := svc.Send(context.Background(), "deleted", "u2", "hi")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))
}

func TestSendPersistenceFailureDoesNotEmit(t *testing.T) {
	mem := newMemoryMessages("u1", "u2")
	mem.failWrite = errors.New("db down")
	hub := realtime.NewHub(nil)
	tab := realtime.NewClient("u2", 4)
	require.NoError(t, hub.Join(tab, "u2"))

	_, err := NewService(mem, hub, nil).Send(context.Background(), "u1", "u2", "hi")
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Empty(t, tab.Send())
}

func TestSendToSelfIsAllowed(t *testing.T) {
	svc := NewService(newMemoryMessages("u1"), nil, nil)
	msg, err := svc.Send(context.Background(), "u1", "u1", "note to self")
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.ReceiverID)
}

func TestListConversationOrdersAscending(t *testing.T) {
	mem := newMemoryMessages("u1", "u2", "u3")
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	svc := NewService(mem, nil, nil).WithClock(func() time.Time { return clock })

	_, _ = svc.Send(context.Background(), "u1", "u2", "first")
	clock = base.Add(time.Minute)
	_, _ = svc.Send(context.Background(), "u2", "u1", "second")
	_, _ = svc.Send(context.Background(), "u3", "u1", "elsewhere")

	thread, err := svc.ListConversation(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "first", thread[0].Content)
	assert.Equal(t, "second", thread[1].Content)

	_, err = svc.ListConversation(context.Background(), "u1", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMarkReadFromSenderNotifiesSender(t *testing.T) {
	hub := realtime.NewHub(nil)
	senderTab := realtime.NewClient("u1", 4)
	require.NoError(t, hub.Join(senderTab, "u1"))

	mem := newMemoryMessages("u1", "u2")
	svc := NewService(mem, hub, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Send(context.Background(), "u1", "u2", "ping")
		require.NoError(t, err)
	}
	unread, err := svc.UnreadCount(context.Background(), "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)

	count, err := svc.MarkReadFromSender(context.Background(), "u2", "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	env := nextFrame(t, senderTab)
	assert.Equal(t, realtime.EventMessagesRead, env.Event)
	assert.JSONEq(t, `{"senderId":"u1","readerId":"u2","count":3}`, string(env.Data))

	unread, err = svc.UnreadCount(context.Background(), "u2")
	require.NoError(t, err)
	assert.Zero(t, unread)

	count, err = svc.MarkReadFromSender(context.Background(), "u2", "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, senderTab.Send())
}

func TestMarkReadFromSenderValidation(t *testing.T) {
	svc := NewService(newMemoryMessages(), nil, nil)
	_, err := svc.MarkReadFromSender(context.Background(), "u2", " ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUnreadCountBySender(t *testing.T) {
	svc := NewService(newMemoryMessages("u1", "u2", "u3"), nil, nil)
	_, _ = svc.Send(context.Background(), "u1", "u3", "a")
	_, _ = svc.Send(context.Background(), "u1", "u3", "b")
	_, _ = svc.Send(context.Background(), "u2", "u3", "c")

	items, err := svc.UnreadCountBySender(context.Background(), "u3")
	require.NoError(t, err)
	assert.Equal(t, []models.SenderUnread{{SenderID: "u1", Count: 2}, {SenderID: "u2", Count: 1}}, items)
}

func TestMarkReadRemovesOnlyThatSendersShare(t *testing.T) {
	svc := NewService(newMemoryMessages("u1", "u2", "u3"), nil, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Send(context.Background(), "u1", "u3", "from u1")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := svc.Send(context.Background(), "u2", "u3", "from u2")
		require.NoError(t, err)
	}
	before, err := svc.UnreadCount(context.Background(), "u3")
	require.NoError(t, err)
	require.EqualValues(t, 5, before)

	count, err := svc.MarkReadFromSender(context.Background(), "u3", "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	after, err := svc.UnreadCount(context.Background(), "u3")
	require.NoError(t, err)
	assert.EqualValues(t, before-count, after)
	assert.EqualValues(t, 2, after)

	items, err := svc.UnreadCountBySender(context.Background(), "u3")
	require.NoError(t, err)
	assert.Equal(t, []models.SenderUnread{{SenderID: "u2", Count: 2}}, items)
}
