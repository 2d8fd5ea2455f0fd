package middleware

import (
	"net/http"
	"slices"
)

// RequireRole returns middleware that allows access only to sessions whose
// JWT role matches one of the given role names (e.g. domain.RoleAdmin).
// It must run inside Auth, which puts the claims in the context.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(allowedRoles, claims.Role) {
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
