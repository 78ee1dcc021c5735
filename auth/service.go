package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/videonest/videonest/log"
	"github.com/videonest/videonest/store"
)

var (
	// ErrInvalidCredentials covers bad login, bad password and unknown
	// accounts alike so responses never reveal which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers expired, revoked, malformed and stale-version
	// tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// UserAccounts is the slice of the user store the service needs.
type UserAccounts interface {
	Create(ctx context.Context, username, email, passwordHash string) (int64, error)
	GetByLogin(ctx context.Context, login string) (store.User, error)
	GetByID(ctx context.Context, id int64) (store.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// RefreshTokens is the slice of the refresh token store the service needs.
type RefreshTokens interface {
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (store.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// TokenBlacklist records revoked access token ids.
type TokenBlacklist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service wires accounts, token issuing and revocation together.
type Service struct {
	Users         UserAccounts
	RefreshTokens RefreshTokens
	Issuer        *TokenIssuer
	Verifier      *TokenVerifier
	Blacklist     TokenBlacklist
}

// Register creates an account. store.ErrDuplicate passes through so the
// handler can answer 400.
func (s *Service) Register(ctx context.Context, username, email, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	id, err := s.Users.Create(ctx, username, email, hash)
	if err != nil {
		return err
	}
	log.LogNoVideoID("registered user", "user_id", id, "username", username)
	return nil
}

// Login authenticates by username or email and mints a token pair. The
// refresh token is persisted so it can be rotated and revoked.
func (s *Service) Login(ctx context.Context, login, password string) (TokenPair, error) {
	user, err := s.Users.GetByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issuePair(ctx, user)
}

// Refresh rotates a refresh token: the presented token is checked against
// its stored row and the user's current token version, revoked, and a new
// pair is minted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.Verifier.Verify(refreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return TokenPair{}, ErrInvalidToken
	}

	row, err := s.RefreshTokens.Get(ctx, refreshToken)
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	if row.IsRevoked || time.Now().After(row.ExpiresAt) {
		return TokenPair{}, ErrInvalidToken
	}

	user, err := s.Users.GetByID(ctx, row.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Version != strconv.FormatInt(user.TokenVersion, 10) {
		// minted before a password change
		return TokenPair{}, ErrInvalidToken
	}

	if err := s.RefreshTokens.Revoke(ctx, refreshToken); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(ctx, user)
}

func (s *Service) issuePair(ctx context.Context, user store.User) (TokenPair, error) {
	pair, refreshClaims, err := s.Issuer.IssuePair(user.ID, user.TokenVersion)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.RefreshTokens.Create(ctx, user.ID, pair.RefreshToken, refreshClaims.ExpiresAt.Time); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Logout blacklists the presented access token until it would have expired.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	if err := s.Blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	log.LogNoVideoID("logged out", "user_id", claims.Subject)
	return nil
}

// ChangePassword verifies the current password, stores the new hash and
// invalidates everything minted so far: access tokens die through the
// version bump, refresh tokens through revocation.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.RefreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	log.LogNoVideoID("password changed", "user_id", userID)
	return nil
}

// Authenticate validates a presented access token end to end: signature,
// type, blacklist and token version.
func (s *Service) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err != nil || claims.TokenType != TokenTypeAccess {
		return Claims{}, ErrInvalidToken
	}

	revoked, err := s.Blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("checking blacklist: %w", err)
	}
	if revoked {
		return Claims{}, ErrInvalidToken
	}

	userID, err := claims.UserID()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	user, err := s.Users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Claims{}, ErrInvalidToken
	}
	if err != nil {
		return Claims{}, err
	}
	if claims.Version != strconv.FormatInt(user.TokenVersion, 10) {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
