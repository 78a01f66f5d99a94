package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
)

// Fields injected into archived copies.
const (
	FieldDeletedAt = "deletedAt"
	FieldDeletedBy = "deletedBy"
)

// Authorizer checks rule grants for an actor.
type Authorizer interface {
	Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error
}

// AuditLogger records lifecycle transitions.
type AuditLogger interface {
	Log(ctx context.Context, action string, actor shared.Actor, details string)
}

// ArchivedRecord is an archived copy with its markers decoded.
type ArchivedRecord struct {
	ID        string            `json:"id"`
	Data      docstore.Document `json:"data"`
	DeletedAt time.Time         `json:"deletedAt"`
	DeletedBy string            `json:"deletedBy"`
}

// Manager applies the ACTIVE -> ARCHIVED -> {ACTIVE, PURGED} lifecycle.
type Manager struct {
	store    docstore.Store
	registry *Registry
	guard    Authorizer
	audit    AuditLogger
	clock    shared.Clock
	logger   *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(store docstore.Store, registry *Registry, guard Authorizer, audit AuditLogger, clock shared.Clock, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		registry: registry,
		guard:    guard,
		audit:    audit,
		clock:    clock,
		logger:   logger.With(slog.String("component", "archive")),
	}
}

// Registry exposes the category registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Archive moves the active record into the archive collection with deletion
// markers. The copy and the removal commit together. A missing record is a
// no-op.
func (m *Manager) Archive(ctx context.Context, actor shared.Actor, category, id string) error {
	c, err := m.authorize(ctx, actor, category, permissions.RuleManageArchive)
	if err != nil {
		return err
	}
	doc, err := m.store.Get(ctx, c.Active, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive: read %s/%s: %w", c.Active, id, err)
	}
	archived := docstore.Clone(doc)
	archived[FieldDeletedAt] = shared.FormatTimestamp(m.clock.Now())
	archived[FieldDeletedBy] = actor.DisplayName()

	err = m.store.Batch(ctx, func(b docstore.Batch) error {
		b.Set(c.Archive, id, archived)
		b.Delete(c.Active, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive: move %s/%s: %w", c.Active, id, err)
	}
	m.audit.Log(ctx, c.ArchiveAction(), actor, fmt.Sprintf("Archived %s %s", c.Name, id))
	return nil
}

// Restore writes the archived snapshot back under the same id without its
// markers and removes the archive copy, atomically. Nothing derived from the
// record is recomputed. A missing copy is a no-op.
func (m *Manager) Restore(ctx context.Context, actor shared.Actor, category, id string) error {
	c, err := m.authorize(ctx, actor, category, permissions.RuleManageArchive)
	if err != nil {
		return err
	}
	doc, err := m.store.Get(ctx, c.Archive, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive: read %s/%s: %w", c.Archive, id, err)
	}
	restored := docstore.Clone(doc)
	delete(restored, FieldDeletedAt)
	delete(restored, FieldDeletedBy)

	err = m.store.Batch(ctx, func(b docstore.Batch) error {
		b.Set(c.Active, id, restored)
		b.Delete(c.Archive, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive: restore %s/%s: %w", c.Archive, id, err)
	}
	m.audit.Log(ctx, c.RestoreAction(), actor, fmt.Sprintf("Restored %s %s", c.Name, id))
	return nil
}

// Purge deletes the archived copy permanently. The category must allow
// purging. A missing copy is a no-op.
func (m *Manager) Purge(ctx context.Context, actor shared.Actor, category, id string) error {
	c, err := m.authorize(ctx, actor, category, permissions.RulePurgeArchive)
	if err != nil {
		return err
	}
	if !c.PurgeEnabled {
		return fmt.Errorf("%w: %s", ErrPurgeDisabled, c.Name)
	}
	if _, err := m.store.Get(ctx, c.Archive, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("archive: read %s/%s: %w", c.Archive, id, err)
	}
	if err := m.store.Delete(ctx, c.Archive, id); err != nil {
		return fmt.Errorf("archive: purge %s/%s: %w", c.Archive, id, err)
	}
	m.audit.Log(ctx, c.PurgeAction(), actor, fmt.Sprintf("Purged %s %s", c.Name, id))
	return nil
}

func (m *Manager) authorize(ctx context.Context, actor shared.Actor, category string, rule permissions.RuleKey) (Category, error) {
	c, err := m.registry.Lookup(category)
	if err != nil {
		return Category{}, err
	}
	if err := m.guard.Authorize(ctx, actor, rule); err != nil {
		return Category{}, err
	}
	return c, nil
}

// ListArchived returns the archived copies of category, most recently
// archived first. Store failures yield an empty list.
func (m *Manager) ListArchived(ctx context.Context, category string) ([]ArchivedRecord, error) {
	c, err := m.registry.Lookup(category)
	if err != nil {
		return nil, err
	}
	records, err := m.store.Query(ctx, c.Archive)
	if err != nil {
		m.logger.Warn("list archived", slog.String("category", c.Name), slog.Any("error", err))
		return []ArchivedRecord{}, nil
	}
	return toArchived(records), nil
}

// ListActive returns the active records of category. Store failures yield an
// empty list.
func (m *Manager) ListActive(ctx context.Context, category string) ([]docstore.Record, error) {
	c, err := m.registry.Lookup(category)
	if err != nil {
		return nil, err
	}
	records, err := m.store.Query(ctx, c.Active)
	if err != nil {
		m.logger.Warn("list active", slog.String("category", c.Name), slog.Any("error", err))
		return []docstore.Record{}, nil
	}
	if records == nil {
		records = []docstore.Record{}
	}
	return records, nil
}

// WatchArchived calls fn with the archived listing now and after every change
// until ctx ends. The subscription is always closed on return.
func (m *Manager) WatchArchived(ctx context.Context, category string, fn func([]ArchivedRecord)) error {
	c, err := m.registry.Lookup(category)
	if err != nil {
		return err
	}
	sub, err := m.store.Subscribe(ctx, c.Archive)
	if err != nil {
		return fmt.Errorf("archive: watch %s: %w", c.Name, err)
	}
	defer sub.Close()

	fn(toArchived(sub.Snapshot))
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.Changes():
			if !ok {
				return nil
			}
			rows, _ := m.ListArchived(ctx, c.Name)
			fn(rows)
		}
	}
}

func toArchived(records []docstore.Record) []ArchivedRecord {
	out := make([]ArchivedRecord, 0, len(records))
	for _, rec := range records {
		deletedAt, _ := rec.Data[FieldDeletedAt].(string)
		deletedBy, _ := rec.Data[FieldDeletedBy].(string)
		out = append(out, ArchivedRecord{
			ID:        rec.ID,
			Data:      rec.Data,
			DeletedAt: shared.ParseTimestamp(deletedAt),
			DeletedBy: deletedBy,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].DeletedAt.After(out[j].DeletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
