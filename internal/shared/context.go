package shared

import (
	"context"
	"strings"
)

// Actor is the authenticated principal performing an operation, as supplied by
// the identity provider. The core trusts it for attribution only.
type Actor struct {
	ID     string
	Name   string
	Email  string
	Avatar string
}

// DisplayName returns the name used for attribution, falling back to email and id.
func (a Actor) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if email := strings.TrimSpace(a.Email); email != "" {
		return email
	}
	return a.ID
}

// IsZero reports whether no identity is attached.
func (a Actor) IsZero() bool {
	return strings.TrimSpace(a.ID) == ""
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.IsZero() {
		return Actor{}, false
	}
	return actor, true
}
