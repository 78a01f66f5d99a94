package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
)

// Repository persists users in the document store.
type Repository struct {
	store docstore.Store
	clock shared.Clock
}

// NewRepository constructs a repository.
func NewRepository(store docstore.Store, clock shared.Clock) *Repository {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Repository{store: store, clock: clock}
}

// Get fetches one user.
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return User{}, fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
		}
		return User{}, fmt.Errorf("users: get %s: %w", id, err)
	}
	return FromRecord(docstore.Record{ID: id, Data: doc})
}

// Create writes u as a whole document.
func (r *Repository) Create(ctx context.Context, u User) error {
	doc, err := u.Document()
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, Collection, u.ID, doc); err != nil {
		return fmt.Errorf("users: create %s: %w", u.ID, err)
	}
	return nil
}

// Update merges fields into the stored user in a single write and stamps
// updatedAt.
func (r *Repository) Update(ctx context.Context, id string, fields docstore.Document) error {
	patch := docstore.Clone(fields)
	if patch == nil {
		patch = docstore.Document{}
	}
	patch["updatedAt"] = shared.FormatTimestamp(r.clock.Now())
	if err := r.store.Update(ctx, Collection, id, patch); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
		}
		return fmt.Errorf("users: update %s: %w", id, err)
	}
	return nil
}

// List returns users matching filters ordered by id. Undecodable records are
// skipped.
func (r *Repository) List(ctx context.Context, filters ...docstore.Filter) ([]User, error) {
	records, err := r.store.Query(ctx, Collection, filters...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	out := make([]User, 0, len(records))
	for _, rec := range records {
		u, err := FromRecord(rec)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// GetSubject implements permissions.UserStore.
func (r *Repository) GetSubject(ctx context.Context, userID string) (permissions.Subject, error) {
	u, err := r.Get(ctx, userID)
	if err != nil {
		return permissions.Subject{}, err
	}
	return u.Subject(), nil
}

// SaveOverrides implements permissions.UserStore. Both maps are replaced.
func (r *Repository) SaveOverrides(ctx context.Context, userID string, overrides permissions.Overrides) error {
	doc, err := docstore.Encode(overrides)
	if err != nil {
		return fmt.Errorf("users: encode overrides %s: %w", userID, err)
	}
	return r.Update(ctx, userID, docstore.Document{"permissions": map[string]any(doc)})
}
