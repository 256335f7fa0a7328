package middleware

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/model"
)

// RequireRole returns middleware that enforces role requirements.
// Must be applied after SessionAuth.
// If multiple roles are provided, holding ANY of them is sufficient.
func RequireRole(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.SessionFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			// Admin holds every role.
			if slices.Contains(claims.Roles, model.RoleAdmin) {
				next.ServeHTTP(w, r)
				return
			}

			for _, role := range required {
				if slices.Contains(claims.Roles, role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "FORBIDDEN",
				fmt.Sprintf("Insufficient permissions. Required role: %s", required[0]))
		})
	}
}

// RequireAdmin is a convenience middleware for the admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}
