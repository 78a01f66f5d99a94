package donations

import (
	"context"
	"errors"
	"fmt"

	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/shared"
)

// Repository persists donations in the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository constructs a repository.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Get fetches one donation.
func (r *Repository) Get(ctx context.Context, id string) (Donation, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Donation{}, fmt.Errorf("donations: %s: %w", id, shared.ErrNotFound)
		}
		return Donation{}, fmt.Errorf("donations: get %s: %w", id, err)
	}
	return FromRecord(docstore.Record{ID: id, Data: doc})
}

// Create writes d.
func (r *Repository) Create(ctx context.Context, d Donation) error {
	doc, err := d.Document()
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, Collection, d.ID, doc); err != nil {
		return fmt.Errorf("donations: create %s: %w", d.ID, err)
	}
	return nil
}

// SetStatus updates the review state in one write.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status, reviewedBy string) error {
	err := r.store.Update(ctx, Collection, id, docstore.Document{"status": string(status), "reviewedBy": reviewedBy})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("donations: %s: %w", id, shared.ErrNotFound)
		}
		return fmt.Errorf("donations: set status %s: %w", id, err)
	}
	return nil
}

// ListByStatus returns donations in status, ordered by id.
func (r *Repository) ListByStatus(ctx context.Context, status Status) ([]Donation, error) {
	return r.list(ctx, docstore.Filter{Field: "status", Value: string(status)})
}

// List returns every active donation.
func (r *Repository) List(ctx context.Context) ([]Donation, error) {
	return r.list(ctx)
}

func (r *Repository) list(ctx context.Context, filters ...docstore.Filter) ([]Donation, error) {
	records, err := r.store.Query(ctx, Collection, filters...)
	if err != nil {
		return nil, fmt.Errorf("donations: list: %w", err)
	}
	out := make([]Donation, 0, len(records))
	for _, rec := range records {
		d, err := FromRecord(rec)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
