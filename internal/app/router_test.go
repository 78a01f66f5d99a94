package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorhub/donorhub/internal/access"
	"github.com/donorhub/donorhub/internal/audit"
	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/observability"
	"github.com/donorhub/donorhub/internal/shared"
	"github.com/donorhub/donorhub/internal/users"
)

type identity struct {
	id, name, email string
}

var (
	rootIdentity  = identity{id: "root-1", name: "Root", email: "Root@DonorHub.org"}
	donorIdentity = identity{id: "u1", name: "Ayu", email: "ayu@example.org"}
)

func newTestServer(t *testing.T) (http.Handler, *Core) {
	t.Helper()
	cfg := &Config{
		AppEnv:                 "test",
		StoreDriver:            StoreMemory,
		RootEmails:             []string{"root@donorhub.org"},
		ArchivePurgeCategories: []string{"feedback"},
		AuditTimeout:           time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	core, err := NewCore(cfg, CoreOptions{
		Store:      docstore.NewMemoryStore(),
		Registerer: metrics.Registerer(),
		Clock:      shared.FixedClock{At: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		Logger:     logger,
	})
	require.NoError(t, err)
	return NewRouter(RouterParams{Logger: logger, Config: cfg, Core: core, Metrics: metrics}), core
}

func call(t *testing.T, h http.Handler, who *identity, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set(HeaderUserID, who.id)
		req.Header.Set(HeaderUserName, who.name)
		req.Header.Set(HeaderUserEmail, who.email)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	rr := call(t, h, nil, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = call(t, h, nil, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "donorhub_http_requests_total")
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	h, _ := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, nil, http.MethodGet, "/api/users/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, h, nil, http.MethodGet, "/api/access/pending", "").Code)
}

func TestAccessWorkflowEndToEnd(t *testing.T) {
	h, core := newTestServer(t)

	rr := call(t, h, &rootIdentity, http.MethodGet, "/api/users/me", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var root users.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &root))
	assert.Equal(t, "SUPERADMIN", string(root.Role))

	rr = call(t, h, &donorIdentity, http.MethodGet, "/api/users/me", "")
	require.Equal(t, http.StatusOK, rr.Code)

	require.Equal(t, http.StatusNoContent, call(t, h, &donorIdentity, http.MethodPost, "/api/access/idcard/request", "").Code)
	require.Equal(t, http.StatusForbidden, call(t, h, &donorIdentity, http.MethodGet, "/api/access/pending", "").Code)

	rr = call(t, h, &rootIdentity, http.MethodGet, "/api/access/pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var pending []access.PendingItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "u1:idcard", pending[0].ID)

	rr = call(t, h, &rootIdentity, http.MethodPost, "/api/access/users/u1/idcard/decide", `{"granted":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, &rootIdentity, http.MethodGet, "/api/access/pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = call(t, h, &rootIdentity, http.MethodPut, "/api/permissions/roles", `{"role":"EDITOR","kind":"rules","key":"canViewLogs","value":true}`)
	require.Equal(t, http.StatusNoContent, rr.Code)

	core.Audit.Wait()
	rr = call(t, h, &rootIdentity, http.MethodGet, "/api/audit?page_size=50", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var timeline audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &timeline))
	actions := make([]string, 0, len(timeline.Rows))
	for _, row := range timeline.Rows {
		actions = append(actions, row.Action)
	}
	assert.ElementsMatch(t, []string{
		users.ActionRegister, users.ActionRegister,
		"IDCARD_ACCESS_REQUEST", "IDCARD_ACCESS_UPDATE", "PERMISSIONS_UPDATE",
	}, actions)
}

func TestNewCoreRejectsUnknownPurgeCategory(t *testing.T) {
	cfg := &Config{RootEmails: []string{"root@donorhub.org"}, ArchivePurgeCategories: []string{"invoices"}, AuditTimeout: time.Second}
	_, err := NewCore(cfg, CoreOptions{Store: docstore.NewMemoryStore(), Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
}
