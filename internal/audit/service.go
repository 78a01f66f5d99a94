package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/donorhub/donorhub/internal/docstore"
)

// Repository reads audit entries.
type Repository interface {
	Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Record, error)
}

// Service serves the audit timeline.
type Service struct {
	repo Repository
}

// NewService constructs a timeline Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	entries, err := s.load(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	offset := (page - 1) * pageSize
	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + pageSize
	hasNext := len(entries) > end
	if end > len(entries) {
		end = len(entries)
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: entries[offset:end], Paging: paging}, nil
}

func (s *Service) load(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	var query []docstore.Filter
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		query = append(query, docstore.Filter{Field: "userId", Value: actor})
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		query = append(query, docstore.Filter{Field: "action", Value: strings.ToUpper(action)})
	}
	records, err := s.repo.Query(ctx, Collection, query...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entry := EntryFromRecord(rec)
		if !filters.From.IsZero() && entry.Timestamp.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && entry.Timestamp.After(filters.To) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}
