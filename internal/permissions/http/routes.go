// Package permissionshttp exposes the permission editor over HTTP.
package permissionshttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/donorhub/donorhub/internal/permissions"
)

// MountRoutes registers the permission endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/permissions/me", h.handleEffective)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireSidebar(permissions.SidebarPermissions))
		gr.Get("/permissions", h.handleConfig)
		gr.Put("/permissions/roles", h.handleUpdateRole)
		gr.Get("/permissions/users/{userID}/redundant", h.handleRedundant)
		gr.With(h.rbac.RequireRoot()).Post("/permissions/pending/sync", h.handleSync)
		gr.With(h.rbac.RequireRoot()).Delete("/permissions/pending", h.handleDiscard)
		gr.With(h.rbac.RequireAll(permissions.RuleEditPermissions)).Post("/permissions/users/{userID}/toggle", h.handleToggle)
	})
}
