package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/shared"
)

const (
	// SettingsCollection holds global configuration documents.
	SettingsCollection = "settings"
	// PermissionsDocID is the id of the AppPermissions document.
	PermissionsDocID = "permissions"

	loadTimeout = 5 * time.Second
)

// ErrStaged reports that a change was recorded as pending instead of being
// written to the global document.
var ErrStaged = errors.New("permissions: change staged as unsynced")

// DocumentStore is the subset of docstore.Store used by ConfigStore.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
	Set(ctx context.Context, collection, id string, doc docstore.Document) error
	Create(ctx context.Context, collection, id string, doc docstore.Document) (bool, error)
}

// RoleChange sets one key of one role in the global configuration.
type RoleChange struct {
	Role  Role   `json:"role"`
	Kind  Kind   `json:"kind"`
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// Validate checks role and key against the closed sets.
func (c RoleChange) Validate() error {
	if !c.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, c.Role)
	}
	switch c.Kind {
	case KindSidebar:
		_, err := ParseSidebarKey(c.Key)
		return err
	case KindRules:
		_, err := ParseRuleKey(c.Key)
		return err
	default:
		return fmt.Errorf("%w: kind %q", ErrUnknownKey, c.Kind)
	}
}

func (c RoleChange) applyTo(perms AppPermissions) {
	set := perms[c.Role]
	switch c.Kind {
	case KindSidebar:
		if set.Sidebar == nil {
			set.Sidebar = make(map[SidebarKey]bool)
		}
		set.Sidebar[SidebarKey(c.Key)] = c.Value
	case KindRules:
		if set.Rules == nil {
			set.Rules = make(map[RuleKey]bool)
		}
		set.Rules[RuleKey(c.Key)] = c.Value
	}
	perms[c.Role] = set
}

func (c RoleChange) target() string {
	return string(c.Role) + "/" + string(c.Kind) + "/" + c.Key
}

// StageReason explains why a change is pending.
type StageReason string

const (
	// ReasonDenied marks a change attempted by an actor without write rights.
	ReasonDenied StageReason = "denied"
	// ReasonUnavailable marks a change whose write failed.
	ReasonUnavailable StageReason = "unavailable"
)

// PendingChange is an unsynced change kept in the side-table.
type PendingChange struct {
	RoleChange
	Reason   StageReason `json:"reason"`
	StagedBy string      `json:"stagedBy"`
	StagedAt time.Time   `json:"stagedAt"`
}

// ConfigStore is the two-tier AppPermissions store: the authoritative global
// document plus an explicit side-table of pending changes. Pending changes
// never take part in resolution.
type ConfigStore struct {
	store  DocumentStore
	logger *slog.Logger
	clock  shared.Clock
	group  singleflight.Group

	writeMu sync.Mutex

	mu       sync.RWMutex
	lastGood AppPermissions
	pending  []PendingChange
}

// NewConfigStore constructs a ConfigStore.
func NewConfigStore(store DocumentStore, logger *slog.Logger, clock shared.Clock) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &ConfigStore{
		store:  store,
		logger: logger.With(slog.String("component", "permissions_config")),
		clock:  clock,
	}
}

// Load returns the current configuration. It never fails: a missing document
// is replaced by the built-in defaults, a malformed one is ignored in favour
// of the defaults and a store failure yields the last known good copy.
func (c *ConfigStore) Load(ctx context.Context) AppPermissions {
	v, _, _ := c.group.Do("load", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return c.load(loadCtx), nil
	})
	return v.(AppPermissions).Clone()
}

func (c *ConfigStore) load(ctx context.Context) AppPermissions {
	doc, err := c.store.Get(ctx, SettingsCollection, PermissionsDocID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return c.seed(ctx)
	case err != nil:
		c.logger.Warn("load permissions, using last known good", slog.Any("error", err))
		return c.fallback()
	}
	perms, err := DecodeAppPermissions(doc)
	if err != nil {
		c.logger.Warn("malformed permissions document, using defaults", slog.Any("error", err))
		return DefaultAppPermissions()
	}
	c.remember(perms)
	return perms
}

// seed writes the built-in defaults unless another writer created the
// document first, in which case the stored copy wins.
func (c *ConfigStore) seed(ctx context.Context) AppPermissions {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	defaults := DefaultAppPermissions()
	doc, err := defaults.Document()
	if err != nil {
		c.logger.Warn("encode default permissions", slog.Any("error", err))
		return defaults
	}
	created, err := c.store.Create(ctx, SettingsCollection, PermissionsDocID, doc)
	if err != nil {
		c.logger.Warn("write default permissions", slog.Any("error", err))
		return c.fallback()
	}
	if created {
		c.remember(defaults)
		return defaults
	}
	perms, err := c.current(ctx)
	if err != nil {
		c.logger.Warn("load permissions, using last known good", slog.Any("error", err))
		return c.fallback()
	}
	c.remember(perms)
	return perms
}

func (c *ConfigStore) fallback() AppPermissions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastGood != nil {
		return c.lastGood.Clone()
	}
	return DefaultAppPermissions()
}

func (c *ConfigStore) remember(perms AppPermissions) {
	c.mu.Lock()
	c.lastGood = perms.Clone()
	c.mu.Unlock()
}

func (c *ConfigStore) write(ctx context.Context, perms AppPermissions) error {
	doc, err := perms.Document()
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, SettingsCollection, PermissionsDocID, doc); err != nil {
		return fmt.Errorf("permissions: save: %w", err)
	}
	return nil
}

// Save writes perms as the whole global document.
func (c *ConfigStore) Save(ctx context.Context, perms AppPermissions) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.write(ctx, perms); err != nil {
		return err
	}
	c.remember(perms)
	return nil
}

// Apply writes changes on top of the current document. Changes staged as
// unavailable are folded into the same write ahead of changes and cleared
// once it succeeds.
func (c *ConfigStore) Apply(ctx context.Context, changes ...RoleChange) (AppPermissions, error) {
	perms, _, err := c.commit(ctx, func(p PendingChange) bool { return p.Reason == ReasonUnavailable }, changes)
	return perms, err
}

// Sync writes every pending change regardless of reason and clears them. It
// returns the number of changes written.
func (c *ConfigStore) Sync(ctx context.Context) (AppPermissions, int, error) {
	return c.commit(ctx, func(PendingChange) bool { return true }, nil)
}

func (c *ConfigStore) commit(ctx context.Context, fold func(PendingChange) bool, changes []RoleChange) (AppPermissions, int, error) {
	for _, change := range changes {
		if err := change.Validate(); err != nil {
			return nil, 0, err
		}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	perms, err := c.current(ctx)
	if err != nil {
		return nil, 0, err
	}
	folded := make(map[string]PendingChange)
	for _, p := range c.Pending() {
		if fold(p) {
			p.applyTo(perms)
			folded[p.target()] = p
		}
	}
	for _, change := range changes {
		change.applyTo(perms)
	}
	if err := c.write(ctx, perms); err != nil {
		return nil, 0, err
	}
	c.remember(perms)
	c.clear(folded)
	return perms, len(folded), nil
}

// current reads the document for a read-modify-write. Unlike Load it reports
// store failures so a stale copy is never written back.
func (c *ConfigStore) current(ctx context.Context) (AppPermissions, error) {
	doc, err := c.store.Get(ctx, SettingsCollection, PermissionsDocID)
	if errors.Is(err, docstore.ErrNotFound) {
		return DefaultAppPermissions(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("permissions: load: %w", err)
	}
	perms, err := DecodeAppPermissions(doc)
	if err != nil {
		c.logger.Warn("replacing malformed permissions document", slog.Any("error", err))
		return DefaultAppPermissions(), nil
	}
	return perms, nil
}

func (c *ConfigStore) clear(folded map[string]PendingChange) {
	if len(folded) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.pending[:0]
	for _, p := range c.pending {
		if f, ok := folded[p.target()]; ok && f.StagedAt.Equal(p.StagedAt) && f.Value == p.Value {
			continue
		}
		kept = append(kept, p)
	}
	c.pending = kept
}

// Stage records change as pending. A later change to the same role and key
// replaces the earlier one.
func (c *ConfigStore) Stage(change RoleChange, reason StageReason, stagedBy string) PendingChange {
	entry := PendingChange{RoleChange: change, Reason: reason, StagedBy: stagedBy, StagedAt: c.clock.Now()}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p.target() == change.target() {
			c.pending[i] = entry
			return entry
		}
	}
	c.pending = append(c.pending, entry)
	return entry
}

// Pending lists unsynced changes in staging order.
func (c *ConfigStore) Pending() []PendingChange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PendingChange, len(c.pending))
	copy(out, c.pending)
	return out
}

// Discard drops every pending change.
func (c *ConfigStore) Discard() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	c.pending = nil
	return n
}
