// Package store holds the SQL for users, notifications and messages.
package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSenderNotFound means the author of a write no longer exists.
	ErrSenderNotFound = errors.New("sender not found")
)

const (
	pgForeignKeyViolation = "23503"
	messagesSenderFK      = "messages_sender_id_fkey"
)

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// foreignKeyViolation returns the violated constraint name, if err is one.
func foreignKeyViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
