package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/models"
)

const userColumns = `id, full_name, email, phone, role, password_hash, created_at, updated_at, version`

type NewUser struct {
	FullName     string
	Email        string
	Phone        string
	Role         string
	PasswordHash string
}

// CreateUser inserts an account. Email and phone uniqueness come from the
// table constraints, so two concurrent registrations cannot both win.
func (s *Store) CreateUser(ctx context.Context, u NewUser) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`INSERT INTO users (full_name, email, phone, role, password_hash, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		 RETURNING `+userColumns,
		strings.TrimSpace(u.FullName), normalizeEmail(u.Email), strings.TrimSpace(u.Phone), u.Role, u.PasswordHash))
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "users_email_key"):
			return nil, database.ErrEmailTaken
		case database.IsUniqueViolation(err, "users_phone_key"):
			return nil, database.ErrPhoneTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.Email,
		&user.Phone,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}
