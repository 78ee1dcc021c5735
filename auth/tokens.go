// Package auth implements accounts and RS256 token handling: short-lived
// access tokens, rotated refresh tokens and a redis jti blacklist for
// logout.
package auth

import (
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 48 * time.Hour

	signingMethod = "RS256"
)

// Claims are the payload of both token types. Version pins the token to the
// user's token_version at issue time, so a password change invalidates all
// earlier tokens without any per-token state.
type Claims struct {
	Version   string `json:"version"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the user's id.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject claim %q: %w", c.Subject, err)
	}
	return id, nil
}

// TokenIssuer mints signed tokens with the RSA private key. Only the auth
// service holds the private key; everything else verifies with the public
// half.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

func NewTokenIssuer(privateKeyPEM []byte) (*TokenIssuer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing RSA private key: %w", err)
	}
	return &TokenIssuer{privateKey: key, now: time.Now}, nil
}

// Issue signs one token of the given type for the user.
func (t *TokenIssuer) Issue(userID, tokenVersion int64, tokenType string, ttl time.Duration) (string, Claims, error) {
	now := t.now()
	claims := Claims{
		Version:   strconv.FormatInt(tokenVersion, 10),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(t.privateKey)
	if err != nil {
		return "", Claims{}, fmt.Errorf("signing %s token: %w", tokenType, err)
	}
	return token, claims, nil
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IssuePair mints a fresh access/refresh pair and returns the refresh claims
// so the caller can persist the rotation.
func (t *TokenIssuer) IssuePair(userID, tokenVersion int64) (TokenPair, Claims, error) {
	access, _, err := t.Issue(userID, tokenVersion, TokenTypeAccess, AccessTokenTTL)
	if err != nil {
		return TokenPair{}, Claims{}, err
	}
	refresh, refreshClaims, err := t.Issue(userID, tokenVersion, TokenTypeRefresh, RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, Claims{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, refreshClaims, nil
}

// TokenVerifier checks token signatures with the RSA public key.
type TokenVerifier struct {
	publicKey *rsa.PublicKey
}

func NewTokenVerifier(publicKeyPEM []byte) (*TokenVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing RSA public key: %w", err)
	}
	return &TokenVerifier{publicKey: key}, nil
}

// Verify parses and validates a token. Tokens without an expiry are
// rejected; an unexpirable token would outlive the blacklist entries that
// are supposed to kill it.
func (v *TokenVerifier) Verify(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{signingMethod}))
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("invalid token: missing exp claim")
	}
	return claims, nil
}
