package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/donorhub/donorhub/internal/shared"
)

// UserStore reads and writes the permission-relevant part of user records.
type UserStore interface {
	// GetSubject returns an error wrapping shared.ErrNotFound for unknown ids.
	GetSubject(ctx context.Context, userID string) (Subject, error)
	// SaveOverrides replaces the user's override maps in one update.
	SaveOverrides(ctx context.Context, userID string, overrides Overrides) error
}

// ConfigSource provides the current AppPermissions.
type ConfigSource interface {
	Load(ctx context.Context) AppPermissions
}

// Guard authorizes actors against their stored user record.
type Guard struct {
	resolver *Resolver
	config   ConfigSource
	users    UserStore
}

// NewGuard constructs a Guard.
func NewGuard(resolver *Resolver, config ConfigSource, users UserStore) *Guard {
	return &Guard{resolver: resolver, config: config, users: users}
}

// Subject resolves the actor's subject. An actor without a user record is
// treated as a plain USER, which still lets a root identity through.
func (g *Guard) Subject(ctx context.Context, actor shared.Actor) (Subject, error) {
	if actor.IsZero() {
		return Subject{}, shared.ErrUnauthenticated
	}
	subject, err := g.users.GetSubject(ctx, actor.ID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return Subject{}, fmt.Errorf("permissions: load actor %s: %w", actor.ID, err)
		}
		subject = Subject{ID: actor.ID, Role: RoleUser}
	}
	if subject.Email == "" {
		subject.Email = actor.Email
	}
	return subject, nil
}

// IsRoot reports whether actor is SUPERADMIN-equivalent.
func (g *Guard) IsRoot(ctx context.Context, actor shared.Actor) (bool, error) {
	subject, err := g.Subject(ctx, actor)
	if err != nil {
		return false, err
	}
	return g.resolver.IsSuperAdmin(subject), nil
}

// Authorize returns nil when actor holds rule. Suspended accounts other than
// root identities are denied everything.
func (g *Guard) Authorize(ctx context.Context, actor shared.Actor, rule RuleKey) error {
	subject, err := g.Subject(ctx, actor)
	if err != nil {
		return err
	}
	if g.resolver.IsSuperAdmin(subject) {
		return nil
	}
	if subject.Suspended {
		return fmt.Errorf("permissions: %s suspended: %w", actor.ID, shared.ErrPermissionDenied)
	}
	if !g.resolver.Rule(g.config.Load(ctx), subject, rule) {
		return fmt.Errorf("permissions: %s lacks %s: %w", actor.ID, rule, shared.ErrPermissionDenied)
	}
	return nil
}

// AuthorizeSidebar returns nil when key is visible to actor.
func (g *Guard) AuthorizeSidebar(ctx context.Context, actor shared.Actor, key SidebarKey) error {
	subject, err := g.Subject(ctx, actor)
	if err != nil {
		return err
	}
	if g.resolver.IsSuperAdmin(subject) {
		return nil
	}
	if subject.Suspended {
		return fmt.Errorf("permissions: %s suspended: %w", actor.ID, shared.ErrPermissionDenied)
	}
	if !g.resolver.Sidebar(g.config.Load(ctx), subject, key) {
		return fmt.Errorf("permissions: %s cannot open %s: %w", actor.ID, key, shared.ErrPermissionDenied)
	}
	return nil
}
