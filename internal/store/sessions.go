package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InitSession creates an empty session row for a new account. It is a
// no-op if the row already exists.
func (s *Store) InitSession(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (user_id, refresh_token, updated_at)
		 VALUES ($1, '', NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, userID int64, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (user_id, refresh_token, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET refresh_token = EXCLUDED.refresh_token, updated_at = NOW()`,
		userID, token)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *Store) ClearSession(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_sessions SET refresh_token = '', updated_at = NOW() WHERE user_id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SessionToken returns the stored refresh token, or "" when the user has
// no session or has logged out.
func (s *Store) SessionToken(ctx context.Context, userID int64) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT refresh_token FROM user_sessions WHERE user_id = $1`,
		userID).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	return token, nil
}

func (s *Store) HasActiveSession(ctx context.Context, userID int64) (bool, error) {
	token, err := s.SessionToken(ctx, userID)
	return token != "", err
}
