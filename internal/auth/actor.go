package auth

import (
	"net/http"
	"strings"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/pkg/logger"
)

// Header names the fronting proxy uses to forward the verified identity.
// Token verification is the proxy's job; the portal trusts these headers.
const (
	HeaderActorEmail = "X-Actor-Email"
	HeaderActorName  = "X-Actor-Name"
	HeaderActorRoles = "X-Actor-Roles"
)

// ActorContext resolves the forwarded identity headers into an Actor on the
// request context. Requests without an identity pass through; role guards
// downstream reject them.
func ActorContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get(HeaderActorEmail))
		if email == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor := &internal.Actor{
			Email: email,
			Name:  strings.TrimSpace(r.Header.Get(HeaderActorName)),
			Roles: splitRoles(r.Header.Get(HeaderActorRoles)),
		}

		ctx := internal.ContextWithActor(r.Context(), actor)
		ctx = logger.With(ctx, "actor", actor.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func splitRoles(raw string) []string {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
