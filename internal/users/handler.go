package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/rbac"
	"github.com/donorhub/donorhub/internal/shared"
)

// Handler manages user endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSidebar(permissions.SidebarUsers))
		r.Get("/users", h.listUsers)
		r.Get("/users/{userID}", h.getUser)
		r.With(h.rbac.RequireAll(permissions.RuleSuspendUsers)).Post("/users/{userID}/suspend", h.suspend(true))
		r.With(h.rbac.RequireAll(permissions.RuleSuspendUsers)).Post("/users/{userID}/unsuspend", h.suspend(false))
		r.With(h.rbac.RequireAll(permissions.RuleEditUsers)).Put("/users/{userID}/role", h.updateRole)
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	u, err := h.service.EnsureProfile(r.Context(), actor)
	if err != nil {
		h.respondError(w, "ensure profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) suspend(suspended bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := shared.ActorFromContext(r.Context())
		if err := h.service.SetSuspended(r.Context(), actor, chi.URLParam(r, "userID"), suspended); err != nil {
			h.respondError(w, "set suspended", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := permissions.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateRole(r.Context(), actor, chi.URLParam(r, "userID"), role); err != nil {
		h.respondError(w, "update role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrPermissionDenied) &&
		!errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrUnauthenticated) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
