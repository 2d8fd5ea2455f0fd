package middleware

import (
	"context"
	"net/http"
	"strings"

	jwtinfra "github.com/ecotrack-api/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// Auth returns middleware that validates the Bearer JWT and injects claims into context.
func Auth(provider *jwtinfra.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := provider.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}
