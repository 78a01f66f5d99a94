package permissionshttp

import (
	"context"
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

// Service is the permissions contract used by the handler.
type Service interface {
	Permissions(ctx context.Context) permissions.AppPermissions
	Pending() []permissions.PendingChange
	UpdateRolePermission(ctx context.Context, actor shared.Actor, change permissions.RoleChange) error
	SyncPending(ctx context.Context, actor shared.Actor) (int, error)
	DiscardPending(ctx context.Context, actor shared.Actor) (int, error)
	ToggleUserOverride(ctx context.Context, actor shared.Actor, userID string, kind permissions.Kind, key string) (permissions.Overrides, error)
	EffectiveForActor(ctx context.Context, actor shared.Actor) (permissions.RolePermissionSet, error)
	RedundantFor(ctx context.Context, userID string) ([]permissions.RedundantOverride, error)
}

// Handler serves the permission editor API.
type Handler struct {
	logger   *slog.Logger
	service  Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a permissions handler.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

type configResponse struct {
	Permissions permissions.AppPermissions  `json:"permissions"`
	Pending     []permissions.PendingChange `json:"pending"`
}

type roleChangeRequest struct {
	Role  string `json:"role" validate:"required"`
	Kind  string `json:"kind" validate:"required,oneof=sidebar rules"`
	Key   string `json:"key" validate:"required"`
	Value *bool  `json:"value" validate:"required"`
}

type toggleRequest struct {
	Kind string `json:"kind" validate:"required,oneof=sidebar rules"`
	Key  string `json:"key" validate:"required"`
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, configResponse{
		Permissions: h.service.Permissions(r.Context()),
		Pending:     h.service.Pending(),
	})
}

func (h *Handler) handleEffective(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	set, err := h.service.EffectiveForActor(r.Context(), actor)
	if err != nil {
		h.respondError(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleChangeRequest
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
	change := permissions.RoleChange{Role: role, Kind: permissions.Kind(req.Kind), Key: req.Key, Value: *req.Value}
	err = h.service.UpdateRolePermission(r.Context(), actor, change)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, permissions.ErrStaged):
		h.logger.Warn("role permission change staged", slog.Any("error", err))
		httpx.JSON(w, http.StatusAccepted, map[string]any{"staged": true, "reason": permissions.ReasonUnavailable})
	case errors.Is(err, shared.ErrPermissionDenied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "Only a super administrator can change role permissions. The change was kept as unsynced.")
	default:
		h.respondError(w, "update role permission", err)
	}
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	n, err := h.service.SyncPending(r.Context(), actor)
	if err != nil {
		h.respondError(w, "sync pending permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"synced": n})
}

func (h *Handler) handleDiscard(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	n, err := h.service.DiscardPending(r.Context(), actor)
	if err != nil {
		h.respondError(w, "discard pending permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"discarded": n})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	overrides, err := h.service.ToggleUserOverride(r.Context(), actor, chi.URLParam(r, "userID"), permissions.Kind(req.Kind), req.Key)
	if err != nil {
		h.respondError(w, "toggle user override", err)
		return
	}
	httpx.JSON(w, http.StatusOK, overrides)
}

func (h *Handler) handleRedundant(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.RedundantFor(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, "redundant overrides", err)
		return
	}
	if found == nil {
		found = []permissions.RedundantOverride{}
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrPermissionDenied) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
