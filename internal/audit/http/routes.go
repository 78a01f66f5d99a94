package audithttp

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/platform/httpx"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireSidebar(permissions.SidebarLogs))
		gr.Use(h.rbac.RequireAll(permissions.RuleViewLogs))
		gr.Get("/audit", h.handleTimeline)
		gr.With(httpx.ActorLimiter(rateLimit, rateWindow)).Get("/audit/export.csv", h.handleExport)
	})
}
