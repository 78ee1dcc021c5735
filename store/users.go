package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when a unique constraint rejects an insert,
// typically a taken username or email.
var ErrDuplicate = errors.New("record already exists")

const uniqueViolation = "23505"

// User is one row of the users table. PasswordHash is a bcrypt hash and
// never leaves the auth service.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	TokenVersion int64
	DateJoined   time.Time
	Avatar       sql.NullString
}

// UserStore persists accounts.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new account and returns its id. Duplicate username or
// email yields ErrDuplicate.
func (s *UserStore) Create(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		username, email, passwordHash).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("creating user %s: %w", username, err)
	}
	return id, nil
}

const userColumns = `id, username, email, password_hash, token_version, date_joined, avatar`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.TokenVersion, &u.DateJoined, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scanning user row: %w", err)
	}
	return u, nil
}

// GetByLogin looks an account up by username or email, whichever matches.
func (s *UserStore) GetByLogin(ctx context.Context, login string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, login)
	return scanUser(row)
}

// GetByID looks an account up by primary key.
func (s *UserStore) GetByID(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UpdatePassword stores a new hash and bumps token_version, which
// invalidates every access token minted against the previous version.
func (s *UserStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, token_version = token_version + 1 WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password for user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating password for user %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
