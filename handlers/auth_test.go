package handlers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/videonest/videonest/auth"
	"github.com/videonest/videonest/middleware"
	"github.com/videonest/videonest/store"
)

type memUsers struct {
	nextID int64
	users  map[int64]store.User
}

func (m *memUsers) Create(_ context.Context, username, email, hash string) (int64, error) {
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return 0, store.ErrDuplicate
		}
	}
	m.nextID++
	m.users[m.nextID] = store.User{ID: m.nextID, Username: username, Email: email, PasswordHash: hash, TokenVersion: 1}
	return m.nextID, nil
}

func (m *memUsers) GetByLogin(_ context.Context, login string) (store.User, error) {
	for _, u := range m.users {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id int64) (store.User, error) {
	u, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	u := m.users[id]
	u.PasswordHash = hash
	u.TokenVersion++
	m.users[id] = u
	return nil
}

type memRefreshTokens struct {
	tokens map[string]store.RefreshToken
}

func (m *memRefreshTokens) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	m.tokens[token] = store.RefreshToken{UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (m *memRefreshTokens) Get(_ context.Context, token string) (store.RefreshToken, error) {
	t, ok := m.tokens[token]
	if !ok {
		return store.RefreshToken{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memRefreshTokens) Revoke(_ context.Context, token string) error {
	t := m.tokens[token]
	t.IsRevoked = true
	m.tokens[token] = t
	return nil
}

func (m *memRefreshTokens) RevokeAllForUser(_ context.Context, userID int64) error {
	for k, t := range m.tokens {
		if t.UserID == userID {
			t.IsRevoked = true
			m.tokens[k] = t
		}
	}
	return nil
}

type memBlacklist struct {
	revoked map[string]bool
}

func (m *memBlacklist) Revoke(_ context.Context, jti string, _ time.Time) error {
	m.revoked[jti] = true
	return nil
}

func (m *memBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	return m.revoked[jti], nil
}

func testAuthRouter(t *testing.T) *httprouter.Router {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	issuer, err := auth.NewTokenIssuer(privPEM)
	require.NoError(t, err)
	verifier, err := auth.NewTokenVerifier(pubPEM)
	require.NoError(t, err)

	service := &auth.Service{
		Users:         &memUsers{users: map[int64]store.User{}},
		RefreshTokens: &memRefreshTokens{tokens: map[string]store.RefreshToken{}},
		Issuer:        issuer,
		Verifier:      verifier,
		Blacklist:     &memBlacklist{revoked: map[string]bool{}},
	}

	c := &AuthHandlersCollection{Service: service}
	router := httprouter.New()
	router.POST("/auth/register/", c.Register())
	router.POST("/auth/login/", c.Login())
	router.POST("/auth/refresh/", c.Refresh())
	router.POST("/auth/logout/", middleware.IsAuthenticated(service, c.Logout()))
	router.POST("/auth/change_password/", middleware.IsAuthenticated(service, c.ChangePassword()))
	return router
}

func doPost(t *testing.T, router *httprouter.Router, url, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginPair(t *testing.T, router *httprouter.Router) auth.TokenPair {
	t.Helper()
	rec := doPost(t, router, "/auth/login/", `{"login":"alice","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func TestRegisterAndLogin(t *testing.T) {
	router := testAuthRouter(t)

	rec := doPost(t, router, "/auth/register/", `{"email":"alice@example.com","username":"alice","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// duplicate registration
	rec = doPost(t, router, "/auth/register/", `{"email":"alice@example.com","username":"alice2","password":"secret123"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// missing fields
	rec = doPost(t, router, "/auth/register/", `{"email":"x@example.com"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	pair := loginPair(t, router)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	rec = doPost(t, router, "/auth/login/", `{"login":"alice","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	router := testAuthRouter(t)
	doPost(t, router, "/auth/register/", `{"email":"alice@example.com","username":"alice","password":"secret123"}`, "")
	pair := loginPair(t, router)

	rec := doPost(t, router, "/auth/refresh/", `{"refresh_token":"`+pair.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// the rotated-out token no longer works
	rec = doPost(t, router, "/auth/refresh/", `{"refresh_token":"`+pair.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doPost(t, router, "/auth/refresh/", `{"refresh_token":"garbage"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	router := testAuthRouter(t)
	doPost(t, router, "/auth/register/", `{"email":"alice@example.com","username":"alice","password":"secret123"}`, "")
	pair := loginPair(t, router)

	// no token
	rec := doPost(t, router, "/auth/logout/", ``, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doPost(t, router, "/auth/logout/", ``, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// the blacklisted token is now rejected by the middleware
	rec = doPost(t, router, "/auth/logout/", ``, pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	router := testAuthRouter(t)
	doPost(t, router, "/auth/register/", `{"email":"alice@example.com","username":"alice","password":"secret123"}`, "")
	pair := loginPair(t, router)

	rec := doPost(t, router, "/auth/change_password/",
		`{"old_password":"secret123","new_password":"newsecret456"}`, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	// old access token died with the version bump
	rec = doPost(t, router, "/auth/change_password/",
		`{"old_password":"newsecret456","new_password":"other"}`, pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doPost(t, router, "/auth/login/", `{"login":"alice","password":"newsecret456"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
