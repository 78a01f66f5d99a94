package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, id string, fields docstore.Document) error
	List(ctx context.Context, filters ...docstore.Filter) ([]User, error)
}

// Authorizer checks rule grants for an actor.
type Authorizer interface {
	Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error
	IsRoot(ctx context.Context, actor shared.Actor) (bool, error)
}

// AuditLogger records user changes.
type AuditLogger interface {
	Log(ctx context.Context, action string, actor shared.Actor, details string)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	roots  permissions.RootIdentities
	guard  Authorizer
	audit  AuditLogger
	clock  shared.Clock
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roots permissions.RootIdentities, guard Authorizer, audit AuditLogger, clock shared.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		roots:  roots,
		guard:  guard,
		audit:  audit,
		clock:  clock,
		logger: logger.With(slog.String("component", "users")),
	}
}

// EnsureProfile returns the actor's user record, creating it on first login.
// Root identities are created as, or corrected to, SUPERADMIN.
func (s *Service) EnsureProfile(ctx context.Context, actor shared.Actor) (User, error) {
	if actor.IsZero() {
		return User{}, shared.ErrUnauthenticated
	}
	u, err := s.Profile(ctx, actor.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return User{}, err
	}

	now := s.clock.Now()
	u = User{
		ID:        actor.ID,
		Role:      permissions.RoleUser,
		Email:     strings.TrimSpace(actor.Email),
		Name:      strings.TrimSpace(actor.Name),
		Avatar:    actor.Avatar,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.roots.Contains(u.Email) {
		u.Role = permissions.RoleSuperAdmin
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	s.logger.Info("user registered", slog.String("user_id", u.ID), slog.String("role", string(u.Role)))
	s.audit.Log(ctx, ActionRegister, actor, fmt.Sprintf("Registered %s as %s", u.DisplayName(), u.Role))
	return u, nil
}

// Profile reads a user. A root identity stored with a lesser role is
// corrected to SUPERADMIN; no write happens when the role is already correct.
func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u.Role == permissions.RoleSuperAdmin || !s.roots.Contains(u.Email) {
		return u, nil
	}
	if err := s.repo.Update(ctx, id, docstore.Document{"role": string(permissions.RoleSuperAdmin)}); err != nil {
		s.logger.Warn("correct root role", slog.String("user_id", id), slog.Any("error", err))
		return u, nil
	}
	s.logger.Info("root role corrected", slog.String("user_id", id), slog.String("previous", string(u.Role)))
	u.Role = permissions.RoleSuperAdmin
	return u, nil
}

// List returns every active user.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// SetSuspended suspends or reinstates a user.
func (s *Service) SetSuspended(ctx context.Context, actor shared.Actor, userID string, suspended bool) error {
	if err := s.guard.Authorize(ctx, actor, permissions.RuleSuspendUsers); err != nil {
		return err
	}
	target, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if suspended && s.roots.Contains(target.Email) {
		return fmt.Errorf("users: root identity cannot be suspended: %w", shared.ErrValidation)
	}
	if err := s.repo.Update(ctx, userID, docstore.Document{"isSuspended": suspended}); err != nil {
		return err
	}
	action, verb := ActionUnsuspend, "Reinstated"
	if suspended {
		action, verb = ActionSuspend, "Suspended"
	}
	s.audit.Log(ctx, action, actor, fmt.Sprintf("%s %s", verb, target.DisplayName()))
	return nil
}

// UpdateRole changes a user's stored role. Only root actors may grant
// SUPERADMIN.
func (s *Service) UpdateRole(ctx context.Context, actor shared.Actor, userID string, role permissions.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", permissions.ErrUnknownRole, role)
	}
	if err := s.guard.Authorize(ctx, actor, permissions.RuleEditUsers); err != nil {
		return err
	}
	if role == permissions.RoleSuperAdmin {
		root, err := s.guard.IsRoot(ctx, actor)
		if err != nil {
			return err
		}
		if !root {
			return fmt.Errorf("users: grant %s: %w", role, shared.ErrPermissionDenied)
		}
	}
	target, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if target.Role == role {
		return nil
	}
	if err := s.repo.Update(ctx, userID, docstore.Document{"role": string(role)}); err != nil {
		return err
	}
	s.audit.Log(ctx, ActionRoleUpdate, actor, fmt.Sprintf("Changed %s from %s to %s", target.DisplayName(), target.Role, role))
	return nil
}
