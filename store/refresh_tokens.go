package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RefreshToken is one row of refresh_tokens. Tokens are opaque strings; the
// auth service rotates them on every refresh and revokes the old row.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsRevoked bool
}

// RefreshTokenStore persists refresh tokens.
type RefreshTokenStore struct {
	db *sql.DB
}

func NewRefreshTokenStore(db *sql.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

// Create stores a freshly minted refresh token.
func (s *RefreshTokenStore) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("storing refresh token for user %d: %w", userID, err)
	}
	return nil
}

// Get returns the row for a presented token. Callers check expiry and
// revocation themselves so they can log the distinction.
func (s *RefreshTokenStore) Get(ctx context.Context, token string) (RefreshToken, error) {
	var t RefreshToken
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, created_at, expires_at, is_revoked
		 FROM refresh_tokens WHERE token = $1`, token).
		Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.IsRevoked)
	if errors.Is(err, sql.ErrNoRows) {
		return RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return RefreshToken{}, fmt.Errorf("getting refresh token: %w", err)
	}
	return t, nil
}

// Revoke marks a single token revoked.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = TRUE WHERE token = $1`, token); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live token a user holds, used on password
// change.
func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND NOT is_revoked`,
		userID); err != nil {
		return fmt.Errorf("revoking refresh tokens for user %d: %w", userID, err)
	}
	return nil
}
