// Package archive moves records between their active and archive
// collections and purges archived copies where the category allows it.
package archive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/donorhub/donorhub/internal/shared"
)

var (
	// ErrUnknownCategory rejects a category outside the registry.
	ErrUnknownCategory = fmt.Errorf("archive: unknown category: %w", shared.ErrValidation)
	// ErrPurgeDisabled occurs when purging a category whose policy forbids it.
	ErrPurgeDisabled = fmt.Errorf("archive: purge disabled for category: %w", shared.ErrPermissionDenied)
)

// Category describes one archivable record kind.
type Category struct {
	Name         string `json:"name"`
	Active       string `json:"active"`
	Archive      string `json:"archive"`
	Noun         string `json:"noun"`
	PurgeEnabled bool   `json:"purgeEnabled"`
}

// ArchiveAction is the audit code for moving a record to the archive.
func (c Category) ArchiveAction() string { return "ARCHIVE_" + c.Noun }

// RestoreAction is the audit code for restoring a record.
func (c Category) RestoreAction() string { return "RESTORE_" + c.Noun }

// PurgeAction is the audit code for purging an archived record.
func (c Category) PurgeAction() string { return "PURGE_" + c.Noun }

var builtinCategories = []Category{
	{Name: "users", Active: "users", Archive: "deleted_users", Noun: "USER"},
	{Name: "donations", Active: "donations", Archive: "deleted_donations", Noun: "DONATION"},
	{Name: "logs", Active: "logs", Archive: "deleted_logs", Noun: "LOG"},
	{Name: "feedback", Active: "feedbacks", Archive: "deleted_feedbacks", Noun: "FEEDBACK"},
	{Name: "notices", Active: "notices", Archive: "deleted_notices", Noun: "NOTICE"},
}

// DefaultPurgeCategories is the purge policy used when none is configured.
var DefaultPurgeCategories = []string{"feedback"}

// Registry holds the archivable categories and their purge policy.
type Registry struct {
	categories []Category
}

// NewRegistry builds the registry with purge enabled for exactly the listed
// categories.
func NewRegistry(purgeEnabled []string) (*Registry, error) {
	enabled := make(map[string]bool, len(purgeEnabled))
	for _, name := range purgeEnabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		enabled[name] = true
	}
	categories := make([]Category, len(builtinCategories))
	copy(categories, builtinCategories)
	var errs []error
	for name := range enabled {
		found := false
		for i := range categories {
			if categories[i].Name == name {
				categories[i].PurgeEnabled = true
				found = true
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCategory, name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Registry{categories: categories}, nil
}

// DefaultRegistry returns the registry with the default purge policy.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultPurgeCategories)
	return r
}

// Lookup resolves a category by name.
func (r *Registry) Lookup(name string) (Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range r.categories {
		if c.Name == name {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// All lists every category in registry order.
func (r *Registry) All() []Category {
	out := make([]Category, len(r.categories))
	copy(out, r.categories)
	return out
}
