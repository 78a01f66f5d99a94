package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
	"github.com/donorhub/donorhub/internal/users"
)

// UserStore reads users and applies single-write field updates.
type UserStore interface {
	Get(ctx context.Context, id string) (users.User, error)
	Update(ctx context.Context, id string, fields docstore.Document) error
}

// Authorizer checks rule grants for an actor.
type Authorizer interface {
	Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error
}

// AuditLogger records access changes.
type AuditLogger interface {
	Log(ctx context.Context, action string, actor shared.Actor, details string)
}

// Decision describes the outcome of Decide.
type Decision struct {
	Previous State `json:"previous"`
	Granted  bool  `json:"granted"`
	// Stale is set when no request was pending at decision time, typically
	// because another decision landed first. The write still applies.
	Stale bool `json:"stale"`
}

// Manager drives request, decide and revoke for every capability.
type Manager struct {
	users  UserStore
	guard  Authorizer
	audit  AuditLogger
	clock  shared.Clock
	logger *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(users UserStore, guard Authorizer, audit AuditLogger, clock shared.Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		users:  users,
		guard:  guard,
		audit:  audit,
		clock:  clock,
		logger: logger.With(slog.String("component", "access")),
	}
}

// Request marks capability c as requested for userID. A user may request for
// themselves; requesting for someone else needs canApproveAccess. Requesting
// again while a request is pending changes nothing.
func (m *Manager) Request(ctx context.Context, actor shared.Actor, userID string, c Capability) error {
	if _, ok := capabilities[c]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, c)
	}
	if actor.IsZero() {
		return shared.ErrUnauthenticated
	}
	if actor.ID != userID {
		if err := m.guard.Authorize(ctx, actor, permissions.RuleApproveAccess); err != nil {
			return err
		}
	}
	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if c.StateOf(u).Requested {
		return nil
	}
	err = m.users.Update(ctx, userID, docstore.Document{
		c.RequestedField():   true,
		c.RequestedAtField(): shared.FormatTimestamp(m.clock.Now()),
	})
	if err != nil {
		return fmt.Errorf("access: request %s for %s: %w", c, userID, err)
	}
	m.audit.Log(ctx, c.RequestAction(), actor, fmt.Sprintf("Requested %s access for %s", c.Label(), u.DisplayName()))
	return nil
}

// Decide grants or denies c for userID. The grant and the cleared request
// bit are written in one update.
func (m *Manager) Decide(ctx context.Context, actor shared.Actor, userID string, c Capability, granted bool) (Decision, error) {
	return m.decide(ctx, actor, userID, c, granted, false)
}

// Revoke removes standing access to c, with or without a pending request.
func (m *Manager) Revoke(ctx context.Context, actor shared.Actor, userID string, c Capability) (Decision, error) {
	return m.decide(ctx, actor, userID, c, false, true)
}

func (m *Manager) decide(ctx context.Context, actor shared.Actor, userID string, c Capability, granted, revoke bool) (Decision, error) {
	if _, ok := capabilities[c]; !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownCapability, c)
	}
	if err := m.guard.Authorize(ctx, actor, permissions.RuleApproveAccess); err != nil {
		return Decision{}, err
	}
	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	previous := c.StateOf(u)
	err = m.users.Update(ctx, userID, docstore.Document{
		c.AccessField():    granted,
		c.RequestedField(): false,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("access: decide %s for %s: %w", c, userID, err)
	}

	decision := Decision{Previous: previous, Granted: granted, Stale: !previous.Requested}
	verb := "Denied"
	switch {
	case revoke:
		verb = "Revoked"
	case granted:
		verb = "Granted"
	}
	details := fmt.Sprintf("%s %s access for %s", verb, c.Label(), u.DisplayName())
	if decision.Stale && !revoke {
		m.logger.Warn("access decision without pending request",
			slog.String("user_id", userID),
			slog.String("capability", string(c)),
			slog.Bool("granted", granted),
			slog.Bool("previous_access", previous.Access),
			slog.String("actor", actor.ID),
		)
		details += fmt.Sprintf(" (no pending request, previous access %t)", previous.Access)
	}
	m.audit.Log(ctx, c.UpdateAction(), actor, details)
	return decision, nil
}

// Status returns the state of every capability for userID.
func (m *Manager) Status(ctx context.Context, userID string) (map[Capability]State, error) {
	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[Capability]State, len(capabilityOrder))
	for _, c := range capabilityOrder {
		out[c] = c.StateOf(u)
	}
	return out, nil
}
