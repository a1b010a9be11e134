// Package middleware provides the HTTP middlewares of the server: CORS,
// identity, request logging, metrics, throttling and request serialisation.
package middleware

import (
	"context"
	"net/http"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
)

// Request headers carrying the caller identity.
const (
	AuthHeader  = "X-Authorization"
	AdminHeader = "X-Admin"
)

type ctxKey string

const (
	userKey  ctxKey = "user"
	adminKey ctxKey = "admin"
)

// Authenticator resolves an access token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Record, error)
}

// Identity resolves the X-Authorization header. When the header is present
// it must name an active session, otherwise the request is rejected with 403
// before reaching any handler. The presence of X-Admin marks the request as
// an admin override.
func Identity(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := r.Header[AdminHeader]; ok {
				ctx = context.WithValue(ctx, adminKey, true)
			}
			if tokens, ok := r.Header[AuthHeader]; ok {
				token := ""
				if len(tokens) > 0 {
					token = tokens[0]
				}
				user, err := auth.Authenticate(ctx, token)
				if err != nil {
					apierror.Write(w, err)
					return
				}
				ctx = context.WithValue(ctx, userKey, user)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user or nil.
func UserFromContext(ctx context.Context) models.Record {
	user, _ := ctx.Value(userKey).(models.Record)
	return user
}

// IsAdmin reports whether the request carries the admin override header.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey).(bool)
	return admin
}
