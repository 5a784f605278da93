package middleware

import (
	"context"
	"net/http"
	"strconv"

	"app/internal/apperr"
	"app/internal/ratelimit"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// APIKeyAuth resolves the bearer credential to an API key and puts both the
// key and its owner's user id on the request context.
func APIKeyAuth(keySvc service.APIKeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				apperr.Write(w, apperr.Unauthorized())
				return
			}
			key, err := keySvc.Resolve(r.Context(), token)
			if err != nil {
				apperr.Write(w, apperr.From(err))
				return
			}
			ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
			ctx = context.WithValue(ctx, UserIDContextKey, key.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GraceReject blocks the request while the key owner's subscription is in a
// grace period. Applied to mutating routes only; reads stay available.
func GraceReject(subSvc service.SubscriptionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				apperr.Write(w, apperr.Unauthorized())
				return
			}
			inGrace, err := subSvc.IsInGracePeriod(r.Context(), userID)
			if err != nil {
				apperr.Write(w, apperr.From(err))
				return
			}
			if inGrace {
				apperr.Write(w, apperr.GracePeriod())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit enforces the per-key request budget for the owner's plan. The
// limiter failing open is the limiter's concern; an error here is surfaced
// as internal.
func RateLimit(limiter ratelimit.Limiter, subSvc service.SubscriptionService, logger zerolog.Logger) func(http.Handler) http.Handler {
	lg := logger.With().Str("middleware", "RateLimit").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := APIKeyFromContext(r.Context())
			if !ok {
				apperr.Write(w, apperr.Unauthorized())
				return
			}
			plan, err := subSvc.PlanForUser(r.Context(), key.UserID)
			if err != nil {
				apperr.Write(w, apperr.From(err))
				return
			}
			result, err := limiter.Check(r.Context(), key.ID, plan)
			if err != nil {
				lg.Error().Err(err).Str("key_id", key.ID).Msg("Rate limit check failed")
				apperr.Write(w, apperr.Internal())
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
			if !result.Allowed {
				apperr.Write(w, apperr.RateLimitExceeded())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
