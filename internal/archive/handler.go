package archive

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/rbac"
	"github.com/donorhub/donorhub/internal/shared"
)

// Handler serves archive endpoints.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, manager *Manager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, rbac: rbac}
}

// MountRoutes registers archive routes.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireSidebar(permissions.SidebarArchive))
		gr.Get("/archive/categories", h.handleCategories)
		gr.Get("/archive/{category}", h.handleList)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(permissions.RuleManageArchive))
		gr.Post("/archive/{category}/{id}", h.handleArchive)
		gr.Post("/archive/{category}/{id}/restore", h.handleRestore)
	})
	r.With(h.rbac.RequireAll(permissions.RulePurgeArchive)).Delete("/archive/{category}/{id}", h.handlePurge)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.manager.Registry().All())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.manager.ListArchived(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.manager.Archive(r.Context(), actor, chi.URLParam(r, "category"), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "archive record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.manager.Restore(r.Context(), actor, chi.URLParam(r, "category"), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "restore record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.manager.Purge(r.Context(), actor, chi.URLParam(r, "category"), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, "purge record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrPermissionDenied) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
