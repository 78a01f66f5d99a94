// Package rbac gates HTTP routes on resolved sidebar visibility and rule
// grants.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/shared"
)

// Authorizer is satisfied by *permissions.Guard.
type Authorizer interface {
	Authorize(ctx context.Context, actor shared.Actor, rule permissions.RuleKey) error
	AuthorizeSidebar(ctx context.Context, actor shared.Actor, key permissions.SidebarKey) error
	IsRoot(ctx context.Context, actor shared.Actor) (bool, error)
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Guard  Authorizer
	Logger *slog.Logger
}

// RequireSidebar ensures the current actor can open every listed surface.
func (m Middleware) RequireSidebar(keys ...permissions.SidebarKey) func(http.Handler) http.Handler {
	return m.require("rbac require sidebar", func(ctx context.Context, actor shared.Actor) error {
		for _, key := range keys {
			if err := m.Guard.AuthorizeSidebar(ctx, actor, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// RequireAny ensures the current actor holds at least one of the rules.
func (m Middleware) RequireAny(rules ...permissions.RuleKey) func(http.Handler) http.Handler {
	return m.require("rbac require any", func(ctx context.Context, actor shared.Actor) error {
		if len(rules) == 0 {
			return nil
		}
		var last error
		for _, rule := range rules {
			err := m.Guard.Authorize(ctx, actor, rule)
			if err == nil {
				return nil
			}
			if !errors.Is(err, shared.ErrPermissionDenied) {
				return err
			}
			last = err
		}
		return last
	})
}

// RequireAll ensures the current actor holds every rule.
func (m Middleware) RequireAll(rules ...permissions.RuleKey) func(http.Handler) http.Handler {
	return m.require("rbac require all", func(ctx context.Context, actor shared.Actor) error {
		for _, rule := range rules {
			if err := m.Guard.Authorize(ctx, actor, rule); err != nil {
				return err
			}
		}
		return nil
	})
}

// RequireRoot ensures the current actor is SUPERADMIN-equivalent.
func (m Middleware) RequireRoot() func(http.Handler) http.Handler {
	return m.require("rbac require root", func(ctx context.Context, actor shared.Actor) error {
		root, err := m.Guard.IsRoot(ctx, actor)
		if err != nil {
			return err
		}
		if !root {
			return shared.ErrPermissionDenied
		}
		return nil
	})
}

func (m Middleware) require(op string, check func(context.Context, shared.Actor) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if err := check(r.Context(), actor); err != nil {
				if !errors.Is(err, shared.ErrPermissionDenied) && !errors.Is(err, shared.ErrUnauthenticated) && m.Logger != nil {
					m.Logger.Error(op, slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
