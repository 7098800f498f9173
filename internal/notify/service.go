package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"je-portal/backend/internal/apperr"
	"je-portal/backend/internal/metrics"
	"je-portal/backend/internal/models"
	"je-portal/backend/internal/realtime"
	"je-portal/backend/internal/store"
)

const (
	DefaultListLimit  = 50
	MaxListLimit      = 200
	DefaultMaxAgeDays = 7
)

type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
	Get(ctx context.Context, id string) (models.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type UserLister interface {
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

type Service struct {
	store       NotificationStore
	users       UserLister
	broadcaster realtime.Broadcaster
	log         *zap.Logger
	now         func() time.Time
}

func NewService(notifications NotificationStore, users UserLister, broadcaster realtime.Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       notifications,
		users:       users,
		broadcaster: broadcaster,
		log:         log.Named("notify"),
		now:         time.Now,
	}
}

// WithClock replaces the time source used for new records and sweeps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Notify persists a notification and pushes it to the recipient's live
// connections. A persistence failure is logged and yields nil.
func (s *Service) Notify(ctx context.Context, userID, message string) *models.Notification {
	created, err := s.store.Create(ctx, models.Notification{
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		metrics.NotificationsFailed.Inc()
		s.log.Error("create notification failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	metrics.NotificationsCreated.Inc()
	if s.broadcaster != nil {
		s.broadcaster.EmitToUser(userID, realtime.EventNotification, created)
	}
	return &created
}

// NotifyAllAdmins notifies every ADMIN concurrently. Results are indexed like
// the admin list; failed entries are nil.
func (s *Service) NotifyAllAdmins(ctx context.Context, message string) ([]*models.Notification, error) {
	admins, err := s.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil, apperr.Internal("failed to load admins", err)
	}

	results := make([]*models.Notification, len(admins))
	var wg sync.WaitGroup
	for i, admin := range admins {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			results[i] = s.Notify(ctx, userID, message)
		}(i, admin.ID)
	}
	wg.Wait()
	return results, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	items, err := s.store.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list notifications", err)
	}
	return items, nil
}

func (s *Service) owned(ctx context.Context, notificationID, requesterID string) error {
	if strings.TrimSpace(notificationID) == "" {
		return apperr.Validation("missing field")
	}
	n, err := s.store.Get(ctx, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return apperr.Internal("failed to load notification", err)
	}
	if n.UserID != requesterID {
		return apperr.Forbidden("not your notification")
	}
	return nil
}

func (s *Service) MarkRead(ctx context.Context, notificationID, requesterID string) error {
	if err := s.owned(ctx, notificationID, requesterID); err != nil {
		return err
	}
	err := s.store.MarkRead(ctx, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return apperr.Internal("failed to update notification", err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperr.Internal("failed to update notifications", err)
	}
	return count, nil
}

func (s *Service) Delete(ctx context.Context, notificationID, requesterID string) error {
	if err := s.owned(ctx, notificationID, requesterID); err != nil {
		return err
	}
	err := s.store.Delete(ctx, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return apperr.Internal("failed to delete notification", err)
	}
	return nil
}

// RetentionSweep deletes notifications strictly older than maxAgeDays.
func (s *Service) RetentionSweep(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	cutoff := s.now().UTC().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, apperr.Internal("retention sweep failed", err)
	}
	metrics.NotificationsSwept.Add(float64(deleted))
	s.log.Info("retention sweep done", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}
