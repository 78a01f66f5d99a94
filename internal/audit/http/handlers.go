package audithttp

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/donorhub/donorhub/internal/audit"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/rbac"
	"github.com/donorhub/donorhub/internal/shared"
)

const (
	dateLayout        = "2006-01-02"
	maxDateRangeHours = 24 * 90
	exportPageSize    = 50
	maxExportPages    = 200
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
}

// NewHandler constructs an audit Handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// handleTimeline answers with an empty page when the journal cannot be read.
func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Warn("load audit timeline", slog.Any("error", err))
		result = audit.Result{Rows: []audit.Entry{}, Paging: audit.PagingInfo{Page: filters.Page, PageSize: filters.PageSize}}
	}
	if result.Rows == nil {
		result.Rows = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters.PageSize = exportPageSize
	var rows []audit.Entry
	for page := 1; page <= maxExportPages; page++ {
		filters.Page = page
		result, err := h.service.Timeline(r.Context(), filters)
		if err != nil {
			h.logger.Error("export audit timeline", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		rows = append(rows, result.Rows...)
		if !result.Paging.HasNext {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-timeline.csv\"")
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"timestamp", "action", "user_id", "user_name", "details"})
	for _, row := range rows {
		_ = cw.Write([]string{shared.FormatTimestamp(row.Timestamp), row.Action, row.UserID, row.UserName, row.Details})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	var filters audit.TimelineFilters
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, invalid("from")
		}
		filters.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, invalid("to")
		}
		// inclusive of the whole day
		filters.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if filters.From.After(filters.To) || filters.To.Sub(filters.From) > maxDateRangeHours*time.Hour {
			return audit.TimelineFilters{}, invalid("range")
		}
	}
	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		return audit.TimelineFilters{}, invalid("page")
	}
	pageSize, err := positiveInt(q.Get("page_size"), 20)
	if err != nil {
		return audit.TimelineFilters{}, invalid("page_size")
	}
	filters.Page = page
	filters.PageSize = pageSize
	filters.Actor = strings.TrimSpace(q.Get("actor"))
	filters.Action = strings.TrimSpace(q.Get("action"))
	return filters, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("not a positive integer")
	}
	return n, nil
}

func invalid(field string) error {
	return fmt.Errorf("audit: invalid %s filter: %w", field, shared.ErrValidation)
}
