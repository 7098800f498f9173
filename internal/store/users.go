package store

import (
	"context"
	"database/sql"

	"je-portal/backend/internal/models"
)

type Users struct {
	DB *sql.DB
}

func NewUsers(db *sql.DB) *Users {
	return &Users{DB: db}
}

const userColumns = `id, name, email, role, junior_id, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.JuniorID, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

func (s *Users) Get(ctx context.Context, id string) (models.User, error) {
	user, err := scanUser(s.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id=$1`, id))
	return user, notFoundOr(err)
}

func (s *Users) GetByEmail(ctx context.Context, email string) (models.User, error) {
	user, err := scanUser(s.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email)=LOWER($1)`, email))
	return user, notFoundOr(err)
}

func (s *Users) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return s.list(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role=$1
		ORDER BY created_at ASC`, string(role))
}

// ListExcept returns every user but the given one, by name. It backs the chat
// contact list.
func (s *Users) ListExcept(ctx context.Context, id string) ([]models.User, error) {
	return s.list(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id<>$1
		ORDER BY name ASC`, id)
}

func (s *Users) list(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
