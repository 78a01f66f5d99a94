package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/donorhub/donorhub/internal/docstore"
)

// Writer is the subset of docstore.Store used to persist entries.
type Writer interface {
	Set(ctx context.Context, collection, id string, doc docstore.Document) error
}

// StoreSink writes entries straight into the logs collection.
type StoreSink struct {
	store Writer
}

// NewStoreSink constructs a StoreSink.
func NewStoreSink(store Writer) *StoreSink {
	return &StoreSink{store: store}
}

// Append persists entry under its id.
func (s *StoreSink) Append(ctx context.Context, entry Entry) error {
	if s == nil || s.store == nil {
		return errors.New("audit: store sink not configured")
	}
	if entry.ID == "" {
		return errors.New("audit: entry id required")
	}
	if err := s.store.Set(ctx, Collection, entry.ID, entry.Document()); err != nil {
		return fmt.Errorf("audit: append %s: %w", entry.Action, err)
	}
	return nil
}
