package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/videonest/videonest/auth"
	"github.com/videonest/videonest/errors"
	"github.com/videonest/videonest/middleware"
	"github.com/videonest/videonest/store"
)

// AuthHandlersCollection serves registration, login and token lifecycle
// endpoints.
type AuthHandlersCollection struct {
	Service *auth.Service
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account.
// POST /auth/register/
func (c *AuthHandlersCollection) Register() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		var body registerRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request body", err)
			return
		}
		if body.Email == "" || body.Username == "" || body.Password == "" {
			errors.WriteHTTPBadRequest(w, "email, username and password are required", nil)
			return
		}

		err := c.Service.Register(req.Context(), body.Username, body.Email, body.Password)
		if err == store.ErrDuplicate {
			errors.WriteHTTPBadRequest(w, "email or username already taken", nil)
			return
		}
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "registration failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"msg": "registered"})
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login authenticates by username or email and returns a token pair.
// POST /auth/login/
func (c *AuthHandlersCollection) Login() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		var body loginRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request body", err)
			return
		}

		pair, err := c.Service.Login(req.Context(), body.Login, body.Password)
		if err == auth.ErrInvalidCredentials {
			errors.WriteHTTPUnauthorized(w, "invalid login or password", nil)
			return
		}
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "login failed", err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token into a new pair.
// POST /auth/refresh/
func (c *AuthHandlersCollection) Refresh() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		var body refreshRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request body", err)
			return
		}

		pair, err := c.Service.Refresh(req.Context(), body.RefreshToken)
		if err == auth.ErrInvalidToken {
			errors.WriteHTTPUnauthorized(w, "invalid refresh token", nil)
			return
		}
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "refresh failed", err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

// Logout blacklists the presented access token. Requires authentication.
// POST /auth/logout/
func (c *AuthHandlersCollection) Logout() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		claims, ok := middleware.ClaimsFromContext(req.Context())
		if !ok {
			errors.WriteHTTPUnauthorized(w, "missing bearer token", nil)
			return
		}
		if err := c.Service.Logout(req.Context(), claims); err != nil {
			errors.WriteHTTPInternalServerError(w, "logout failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"msg": "logged out"})
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces the password and invalidates all existing tokens.
// Requires authentication.
// POST /auth/change_password/
func (c *AuthHandlersCollection) ChangePassword() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		claims, ok := middleware.ClaimsFromContext(req.Context())
		if !ok {
			errors.WriteHTTPUnauthorized(w, "missing bearer token", nil)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			errors.WriteHTTPUnauthorized(w, "invalid token", err)
			return
		}

		var body changePasswordRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			errors.WriteHTTPBadRequest(w, "invalid request body", err)
			return
		}
		if body.NewPassword == "" {
			errors.WriteHTTPBadRequest(w, "new_password is required", nil)
			return
		}

		err = c.Service.ChangePassword(req.Context(), userID, body.OldPassword, body.NewPassword)
		if err == auth.ErrInvalidCredentials {
			errors.WriteHTTPUnauthorized(w, "invalid password", nil)
			return
		}
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "password change failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"msg": "password changed"})
	}
}
