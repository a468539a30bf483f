package internal

import (
	"context"
	"time"
)

// Actor is the authenticated identity the fronting proxy forwarded with the
// request. Token verification happens upstream; the portal only consumes the
// resolved identity and role set.
type Actor struct {
	Email string
	Name  string
	Roles []string
}

const (
	RoleAdmin       = "admin"
	RoleAuditViewer = "audit_viewer"
)

func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a *Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

type ctxKey string

const contextActorKey ctxKey = "actor"

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(contextActorKey).(*Actor)
	return actor, ok
}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
