package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/shared"
)

type stubAuthorizer struct {
	rules   map[permissions.RuleKey]bool
	sidebar map[permissions.SidebarKey]bool
	root    bool
	err     error
}

func (s stubAuthorizer) Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error {
	if s.err != nil {
		return s.err
	}
	if s.rules[rule] {
		return nil
	}
	return shared.ErrPermissionDenied
}

func (s stubAuthorizer) AuthorizeSidebar(ctx context.Context, actor shared.Actor, key permissions.SidebarKey) error {
	if s.sidebar[key] {
		return nil
	}
	return shared.ErrPermissionDenied
}

func (s stubAuthorizer) IsRoot(ctx context.Context, actor shared.Actor) (bool, error) {
	return s.root, s.err
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, withActor bool) int {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if withActor {
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: "admin-1"}))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Code
}

func TestMiddlewareStatuses(t *testing.T) {
	grants := stubAuthorizer{
		rules:   map[permissions.RuleKey]bool{permissions.RuleViewLogs: true},
		sidebar: map[permissions.SidebarKey]bool{permissions.SidebarLogs: true},
	}
	m := Middleware{Guard: grants}

	tests := []struct {
		name      string
		mw        func(http.Handler) http.Handler
		withActor bool
		want      int
	}{
		{name: "no actor", mw: m.RequireAny(permissions.RuleViewLogs), want: http.StatusUnauthorized},
		{name: "any granted", mw: m.RequireAny(permissions.RulePurgeArchive, permissions.RuleViewLogs), withActor: true, want: http.StatusNoContent},
		{name: "any denied", mw: m.RequireAny(permissions.RulePurgeArchive), withActor: true, want: http.StatusForbidden},
		{name: "all denied", mw: m.RequireAll(permissions.RuleViewLogs, permissions.RulePurgeArchive), withActor: true, want: http.StatusForbidden},
		{name: "sidebar granted", mw: m.RequireSidebar(permissions.SidebarLogs), withActor: true, want: http.StatusNoContent},
		{name: "sidebar denied", mw: m.RequireSidebar(permissions.SidebarArchive), withActor: true, want: http.StatusForbidden},
		{name: "root denied", mw: m.RequireRoot(), withActor: true, want: http.StatusForbidden},
		{name: "root granted", mw: Middleware{Guard: stubAuthorizer{root: true}}.RequireRoot(), withActor: true, want: http.StatusNoContent},
		{name: "lookup failure", mw: Middleware{Guard: stubAuthorizer{err: errors.New("store down")}}.RequireAll(permissions.RuleViewLogs), withActor: true, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serve(t, tt.mw, tt.withActor); got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}
