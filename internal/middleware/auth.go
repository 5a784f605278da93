package middleware

import (
	"context"
	"net/http"
	"strings"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/util"
)

// Injected key type to avoid context collisions
type contextKey string

const (
	UserIDContextKey = contextKey("user_id")
	APIKeyContextKey = contextKey("api_key")
)

// UserIDFromContext returns the authenticated user id set by either auth
// middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDContextKey).(string)
	return id, ok
}

// APIKeyFromContext returns the resolved API key, present only on routes
// behind APIKeyAuth.
func APIKeyFromContext(ctx context.Context) (*model.APIKey, bool) {
	key, ok := ctx.Value(APIKeyContextKey).(*model.APIKey)
	return key, ok
}

// bearerToken extracts the credential from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth guards dashboard routes with a bearer session token. The user id
// travels in the token subject.
func JWTAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				apperr.Write(w, apperr.Unauthorized())
				return
			}
			claims, err := util.ValidateJWT(token, jwtSecret)
			if err != nil {
				apperr.Write(w, apperr.Unauthorized())
				return
			}
			ctx := context.WithValue(r.Context(), UserIDContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CronAuth guards cron endpoints with the shared cron secret.
func CronAuth(cronSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || token != cronSecret {
				apperr.Write(w, apperr.Unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
