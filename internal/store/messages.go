package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"je-portal/backend/internal/models"
)

type Messages struct {
	DB *sql.DB
}

func NewMessages(db *sql.DB) *Messages {
	return &Messages{DB: db}
}

const messageColumns = `m.id, m.sender_id, m.receiver_id, m.content, m.is_read, m.created_at,
		       s.name, s.email, r.name, r.email`

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var msg models.Message
	sender := &models.Party{}
	receiver := &models.Party{}
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.IsRead, &msg.CreatedAt,
		&sender.Name, &sender.Email, &receiver.Name, &receiver.Email); err != nil {
		return models.Message{}, err
	}
	sender.ID = msg.SenderID
	receiver.ID = msg.ReceiverID
	msg.Sender = sender
	msg.Receiver = receiver
	return msg, nil
}

// Insert stores an unread message and returns it with both parties joined.
// A missing sender yields ErrSenderNotFound, a missing receiver ErrNotFound.
func (s *Messages) Insert(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	created, err := scanMessage(s.DB.QueryRowContext(ctx, `
		WITH m AS (
			INSERT INTO messages (id, sender_id, receiver_id, content, is_read, created_at)
			VALUES ($1,$2,$3,$4,FALSE,$5)
			RETURNING id, sender_id, receiver_id, content, is_read, created_at
		)
		SELECT `+messageColumns+`
		FROM m
		JOIN users s ON s.id = m.sender_id
		JOIN users r ON r.id = m.receiver_id`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt))
	if constraint, ok := foreignKeyViolation(err); ok {
		if constraint == messagesSenderFK {
			return models.Message{}, ErrSenderNotFound
		}
		return models.Message{}, ErrNotFound
	}
	return created, notFoundOr(err)
}

// Conversation returns both directions between two users, oldest first.
func (s *Messages) Conversation(ctx context.Context, userID, otherUserID string) ([]models.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		JOIN users r ON r.id = m.receiver_id
		WHERE (m.sender_id=$1 AND m.receiver_id=$2)
		   OR (m.sender_id=$2 AND m.receiver_id=$1)
		ORDER BY m.created_at ASC, m.id ASC`, userID, otherUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Messages) MarkReadFromSender(ctx context.Context, receiverID, senderID string) (int64, error) {
	result, err := s.DB.ExecContext(ctx, `
		UPDATE messages
		SET is_read=TRUE
		WHERE receiver_id=$1 AND sender_id=$2 AND is_read=FALSE`, receiverID, senderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Messages) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE receiver_id=$1 AND is_read=FALSE`, userID).Scan(&count)
	return count, err
}

func (s *Messages) UnreadBySender(ctx context.Context, userID string) ([]models.SenderUnread, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id=$1 AND is_read=FALSE
		GROUP BY sender_id
		ORDER BY sender_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.SenderUnread{}
	for rows.Next() {
		var item models.SenderUnread
		if err := rows.Scan(&item.SenderID, &item.Count); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
