package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"je-portal/backend/internal/apperr"
	"je-portal/backend/internal/metrics"
	"je-portal/backend/internal/models"
	"je-portal/backend/internal/realtime"
	"je-portal/backend/internal/store"
)

type MessageStore interface {
	Insert(ctx context.Context, msg models.Message) (models.Message, error)
	Conversation(ctx context.Context, userID, otherUserID string) ([]models.Message, error)
	MarkReadFromSender(ctx context.Context, receiverID, senderID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	UnreadBySender(ctx context.Context, userID string) ([]models.SenderUnread, error)
}

type Service struct {
	store       MessageStore
	broadcaster realtime.Broadcaster
	log         *zap.Logger
	now         func() time.Time
}

func NewService(messages MessageStore, broadcaster realtime.Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       messages,
		broadcaster: broadcaster,
		log:         log.Named("messaging"),
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) emit(userID, event string, payload any) {
	if s.broadcaster != nil {
		s.broadcaster.EmitToUser(userID, event, payload)
	}
}

// Send stores a message and pushes it to the receiver only.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content string) (models.Message, error) {
	if strings.TrimSpace(receiverID) == "" || strings.TrimSpace(content) == "" {
		return models.Message{}, apperr.Validation("missing field")
	}
	msg, err := s.store.Insert(ctx, models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	})
	if errors.Is(err, store.ErrSenderNotFound) {
		return models.Message{}, apperr.Unauthenticated("unknown sender")
	}
	if errors.Is(err, store.ErrNotFound) {
		return models.Message{}, apperr.NotFound("receiver not found")
	}
	if err != nil {
		return models.Message{}, apperr.Internal("failed to send message", err)
	}
	metrics.MessagesSent.Inc()
	s.emit(receiverID, realtime.EventNewMessage, msg)
	return msg, nil
}

func (s *Service) ListConversation(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	if strings.TrimSpace(otherUserID) == "" {
		return nil, apperr.Validation("missing field")
	}
	thread, err := s.store.Conversation(ctx, userID, otherUserID)
	if err != nil {
		return nil, apperr.Internal("failed to load conversation", err)
	}
	return thread, nil
}

// MarkReadFromSender flips every unread message from senderID to myUserID and
// tells the sender when anything changed.
func (s *Service) MarkReadFromSender(ctx context.Context, myUserID, senderID string) (int64, error) {
	if strings.TrimSpace(senderID) == "" {
		return 0, apperr.Validation("missing field")
	}
	count, err := s.store.MarkReadFromSender(ctx, myUserID, senderID)
	if err != nil {
		return 0, apperr.Internal("failed to mark messages read", err)
	}
	if count > 0 {
		s.emit(senderID, realtime.EventMessagesRead, models.MessagesRead{
			SenderID: senderID,
			ReaderID: myUserID,
			Count:    count,
		})
	}
	return count, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("failed to count unread messages", err)
	}
	return count, nil
}

func (s *Service) UnreadCountBySender(ctx context.Context, userID string) ([]models.SenderUnread, error) {
	items, err := s.store.UnreadBySender(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to count unread messages", err)
	}
	return items, nil
}
