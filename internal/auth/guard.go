package auth

import (
	"log/slog"
	"net/http"

	"github.com/opslane/access-portal/internal"
)

// Guard is the single authorization capability check applied at the boundary.
// Handlers never re-derive roles themselves.
type Guard struct {
	logger *slog.Logger
}

func NewGuard(logger *slog.Logger) *Guard {
	return &Guard{logger: logger}
}

// RequireRole rejects requests whose actor lacks the given role.
func (g *Guard) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := internal.ActorFromContext(r.Context())
			if !ok || actor == nil {
				g.logger.Warn("authorization check failed: no actor on request",
					"path", r.URL.Path)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !actor.HasRole(role) {
				g.logger.WarnContext(r.Context(), "access denied: insufficient role",
					"actor", actor.Email,
					"required_role", role,
					"actor_roles", actor.Roles)
				http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards every mutating route of the portal.
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return g.RequireRole(internal.RoleAdmin)
}

// RequireAnyRole admits an actor holding at least one of the given roles,
// used for read-only surfaces shared between admin tiers.
func (g *Guard) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := internal.ActorFromContext(r.Context())
			if !ok || actor == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if actor.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			g.logger.WarnContext(r.Context(), "access denied: insufficient role",
				"actor", actor.Email,
				"required_roles", roles,
				"actor_roles", actor.Roles)
			http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
		})
	}
}
