package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/satspin/satspin/internal/ratelimit"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

func identityFromContext(ctx context.Context) (userID int64, username string) {
	userID, _ = ctx.Value(userIDKey).(int64)
	username, _ = ctx.Value(usernameKey).(string)

	return userID, username
}

// bearerToken extracts the token from the Authorization header, or
// from the token query parameter for clients that cannot set headers
// (the websocket upgrade).
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}

	return r.URL.Query().Get("token")
}

// AuthMiddleware verifies the bearer token and stores the caller's
// identity in the request context.
func AuthMiddleware(authSvc AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			userID, username, err := authSvc.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, usernameKey, username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles per user. A limiter failure admits the
// request: throttling is protective, not load-bearing.
func RateLimitMiddleware(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := identityFromContext(r.Context())

			ok, err := limiter.Allow(r.Context(), strconv.FormatInt(userID, 10))
			if err != nil {
				slog.Warn("rate limiter unavailable", "error", err)
				ok = true
			}

			if !ok {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
