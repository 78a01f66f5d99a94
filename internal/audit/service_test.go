package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/donorhub/donorhub/internal/docstore"
)

type stubTimelineRepo struct {
	records     []docstore.Record
	err         error
	lastFilters []docstore.Filter
}

func (s *stubTimelineRepo) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Record, error) {
	s.lastFilters = filters
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func mockRecord(id, ts, actor, action string) docstore.Record {
	return docstore.Record{ID: id, Data: docstore.Document{
		"action":    action,
		"userId":    actor,
		"userName":  actor + " name",
		"details":   "details " + id,
		"timestamp": ts,
	}}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{records: []docstore.Record{
		mockRecord("a", "2024-03-08T08:00:00Z", "admin-1", "ARCHIVE_USER"),
		mockRecord("b", "2024-03-10T10:00:00Z", "admin-1", "RESTORE_USER"),
		mockRecord("c", "2024-03-09T09:00:00Z", "admin-2", "IDCARD_ACCESS_UPDATE"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if result.Rows[0].ID != "b" || result.Rows[1].ID != "c" {
		t.Fatalf("expected newest first, got %s,%s", result.Rows[0].ID, result.Rows[1].ID)
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline page 2: %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0].ID != "a" {
		t.Fatalf("unexpected page 2 rows: %+v", result.Rows)
	}
	if result.Paging.HasNext || result.Paging.PrevPage != 1 {
		t.Fatalf("unexpected paging: %+v", result.Paging)
	}
}

func TestServiceTimelineFilters(t *testing.T) {
	repo := &stubTimelineRepo{records: []docstore.Record{
		mockRecord("a", "2024-03-08T08:00:00Z", "admin-1", "ARCHIVE_USER"),
		mockRecord("b", "2024-03-10T10:00:00Z", "admin-1", "ARCHIVE_USER"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{
		Actor:  " admin-1 ",
		Action: "archive_user",
		From:   time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(repo.lastFilters) != 2 {
		t.Fatalf("expected actor and action filters, got %+v", repo.lastFilters)
	}
	if repo.lastFilters[1].Value != "ARCHIVE_USER" {
		t.Fatalf("expected upper-cased action filter, got %v", repo.lastFilters[1].Value)
	}
	if len(result.Rows) != 1 || result.Rows[0].ID != "b" {
		t.Fatalf("expected only entries after From, got %+v", result.Rows)
	}
	if result.Paging.PageSize != 20 {
		t.Fatalf("expected default page size 20, got %d", result.Paging.PageSize)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	var records []docstore.Record
	for i := 0; i < 60; i++ {
		records = append(records, mockRecord(fmt.Sprintf("%02d", i), "2024-03-08T08:00:00Z", "a", "X"))
	}
	svc := NewService(&stubTimelineRepo{records: records})
	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(result.Rows))
	}
}

func TestServiceTimelinePropagatesRepoError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubTimelineRepo{err: boom})
	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
