package permissions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/donorhub/donorhub/internal/shared"
)

// Audit action codes.
const (
	ActionPermissionsUpdate        = "PERMISSIONS_UPDATE"
	ActionPermissionOverrideUpdate = "PERMISSION_OVERRIDE_UPDATE"
)

// AuditLogger records permission changes.
type AuditLogger interface {
	Log(ctx context.Context, action string, actor shared.Actor, details string)
}

// Service orchestrates global and per-user permission edits.
type Service struct {
	resolver *Resolver
	config   *ConfigStore
	guard    *Guard
	users    UserStore
	audit    AuditLogger
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(resolver *Resolver, config *ConfigStore, users UserStore, audit AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver: resolver,
		config:   config,
		guard:    NewGuard(resolver, config, users),
		users:    users,
		audit:    audit,
		logger:   logger.With(slog.String("component", "permissions")),
	}
}

// Guard exposes the authorizer shared with other managers.
func (s *Service) Guard() *Guard {
	return s.guard
}

// Permissions returns the current global configuration.
func (s *Service) Permissions(ctx context.Context) AppPermissions {
	return s.config.Load(ctx)
}

// Pending lists unsynced global changes.
func (s *Service) Pending() []PendingChange {
	return s.config.Pending()
}

// UpdateRolePermission writes one key of one role. Non-root actors get
// shared.ErrPermissionDenied and their change is staged as denied; a failed
// write is staged as unavailable and reported with ErrStaged.
func (s *Service) UpdateRolePermission(ctx context.Context, actor shared.Actor, change RoleChange) error {
	if err := change.Validate(); err != nil {
		return err
	}
	root, err := s.guard.IsRoot(ctx, actor)
	if err != nil {
		return err
	}
	if !root {
		s.config.Stage(change, ReasonDenied, actor.DisplayName())
		s.logger.Info("role permission change staged", slog.String("actor", actor.ID), slog.String("reason", string(ReasonDenied)))
		return fmt.Errorf("permissions: update role %s: %w", change.Role, shared.ErrPermissionDenied)
	}
	if _, err := s.config.Apply(ctx, change); err != nil {
		s.config.Stage(change, ReasonUnavailable, actor.DisplayName())
		s.logger.Warn("role permission change staged", slog.String("actor", actor.ID), slog.Any("error", err))
		return fmt.Errorf("permissions: update role %s: %w: %w", change.Role, ErrStaged, err)
	}
	s.audit.Log(ctx, ActionPermissionsUpdate, actor,
		fmt.Sprintf("Set %s.%s for %s to %t", change.Kind, change.Key, change.Role, change.Value))
	return nil
}

// SyncPending pushes every pending change. Only root actors may sync.
func (s *Service) SyncPending(ctx context.Context, actor shared.Actor) (int, error) {
	root, err := s.guard.IsRoot(ctx, actor)
	if err != nil {
		return 0, err
	}
	if !root {
		return 0, fmt.Errorf("permissions: sync pending: %w", shared.ErrPermissionDenied)
	}
	_, n, err := s.config.Sync(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit.Log(ctx, ActionPermissionsUpdate, actor, fmt.Sprintf("Synced %d pending permission changes", n))
	}
	return n, nil
}

// DiscardPending drops every pending change. Only root actors may discard.
func (s *Service) DiscardPending(ctx context.Context, actor shared.Actor) (int, error) {
	root, err := s.guard.IsRoot(ctx, actor)
	if err != nil {
		return 0, err
	}
	if !root {
		return 0, fmt.Errorf("permissions: discard pending: %w", shared.ErrPermissionDenied)
	}
	return s.config.Discard(), nil
}

// ToggleUserOverride applies the override editor's toggle to one key of the
// target user and returns the resulting overrides.
func (s *Service) ToggleUserOverride(ctx context.Context, actor shared.Actor, userID string, kind Kind, key string) (Overrides, error) {
	if err := s.guard.Authorize(ctx, actor, RuleEditPermissions); err != nil {
		return Overrides{}, err
	}
	subject, err := s.users.GetSubject(ctx, userID)
	if err != nil {
		return Overrides{}, err
	}
	perms := s.config.Load(ctx)
	base, err := RoleBase(perms, subject.Role, kind, key)
	if err != nil {
		return Overrides{}, err
	}

	var next Overrides
	var value, set bool
	switch kind {
	case KindSidebar:
		k := SidebarKey(key)
		next = ToggleSidebar(subject.Overrides, k, base)
		value, set = next.Sidebar[k]
	case KindRules:
		k := RuleKey(key)
		next = ToggleRule(subject.Overrides, k, base)
		value, set = next.Rules[k]
	}
	if err := s.users.SaveOverrides(ctx, userID, next); err != nil {
		return Overrides{}, fmt.Errorf("permissions: save overrides %s: %w", userID, err)
	}

	details := fmt.Sprintf("Reset %s.%s for %s to role default", kind, key, userID)
	if set {
		details = fmt.Sprintf("Set %s.%s for %s to %t", kind, key, userID, value)
	}
	s.audit.Log(ctx, ActionPermissionOverrideUpdate, actor, details)
	return next, nil
}

// EffectiveFor resolves every key for subject.
func (s *Service) EffectiveFor(ctx context.Context, subject Subject) RolePermissionSet {
	return s.resolver.EffectiveSet(s.config.Load(ctx), subject)
}

// EffectiveForActor resolves every key for actor. Unknown actors resolve as
// plain users.
func (s *Service) EffectiveForActor(ctx context.Context, actor shared.Actor) (RolePermissionSet, error) {
	subject, err := s.guard.Subject(ctx, actor)
	if err != nil {
		return RolePermissionSet{}, err
	}
	return s.EffectiveFor(ctx, subject), nil
}

// RedundantFor reports overrides of userID that equal the current role
// default.
func (s *Service) RedundantFor(ctx context.Context, userID string) ([]RedundantOverride, error) {
	subject, err := s.users.GetSubject(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("permissions: redundant overrides %s: %w", userID, err)
	}
	return RedundantOverrides(s.config.Load(ctx), subject), nil
}
