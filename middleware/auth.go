package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/videonest/videonest/auth"
	"github.com/videonest/videonest/errors"
)

type claimsContextKey struct{}

// Authenticator validates a bearer token and returns its claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Claims, error)
}

// IsAuthenticated guards a handler with bearer token authentication. The
// validated claims are stored on the request context for the handler.
func IsAuthenticated(a Authenticator, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			errors.WriteHTTPUnauthorized(w, "missing bearer token", nil)
			return
		}

		claims, err := a.Authenticate(r.Context(), token)
		if err != nil {
			errors.WriteHTTPUnauthorized(w, "invalid token", err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next(w, r.WithContext(ctx), ps)
	}
}

// ClaimsFromContext returns the claims IsAuthenticated stored, if any.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(auth.Claims)
	return claims, ok
}
