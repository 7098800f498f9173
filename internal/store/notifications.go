package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"je-portal/backend/internal/models"
)

type Notifications struct {
	DB *sql.DB
}

func NewNotifications(db *sql.DB) *Notifications {
	return &Notifications{DB: db}
}

func (s *Notifications) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	var created models.Notification
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, message, is_read, created_at)
		VALUES ($1,$2,$3,FALSE,$4)
		RETURNING id, user_id, message, is_read, created_at`, n.ID, n.UserID, n.Message, n.CreatedAt).Scan(
		&created.ID, &created.UserID, &created.Message, &created.IsRead, &created.CreatedAt,
	)
	return created, err
}

func (s *Notifications) Get(ctx context.Context, id string) (models.Notification, error) {
	var n models.Notification
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, message, is_read, created_at
		FROM notifications
		WHERE id=$1`, id).Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt)
	return n, notFoundOr(err)
}

func (s *Notifications) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, message, is_read, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *Notifications) MarkRead(ctx context.Context, id string) error {
	result, err := s.DB.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Notifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := s.DB.ExecContext(ctx, `
		UPDATE notifications
		SET is_read=TRUE
		WHERE user_id=$1 AND is_read=FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Notifications) Delete(ctx context.Context, id string) error {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteOlderThan removes notifications created strictly before cutoff.
func (s *Notifications) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
