// Package mw contains HTTP middleware for the pixie API.
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/repository"
)

// ContextKey is a type for context keys.
type ContextKey string

// UserKey is the context key for the authenticated user.
const UserKey ContextKey = "user"

const (
	unauthorizedBody = `{"error":{"message":"Invalid or missing API key","type":"authentication_error","code":"unauthorized"}}`
	forbiddenBody    = `{"error":{"message":"Admin access required","type":"permission_denied","code":"forbidden"}}`
)

func writeJSONError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Auth returns an authentication middleware validating pixie API keys.
func Auth(users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(r, users)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, unauthorizedBody)
				return
			}
			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user when a valid key is presented but lets
// unauthenticated requests through. Public endpoints that personalize
// for signed-in users use this.
func OptionalAuth(users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := authenticate(r, users); ok {
				ctx := context.WithValue(r.Context(), UserKey, user)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, users repository.UserRepository) (*models.User, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false
	}

	token := authHeader
	if strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if !strings.HasPrefix(token, "pixie_") {
		return nil, false
	}

	user, err := users.GetByAPIKey(r.Context(), token)
	if err != nil || user == nil {
		return nil, false
	}
	return user, true
}

// GetUser retrieves the authenticated user from context.
func GetUser(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// RequireAdmin returns middleware that restricts a route to admins.
// When the admin surface is disabled the routes are simply not mounted,
// so this only guards per-user flags.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeJSONError(w, http.StatusUnauthorized, unauthorizedBody)
				return
			}
			if !user.IsAdmin {
				writeJSONError(w, http.StatusForbidden, forbiddenBody)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
