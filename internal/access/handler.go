package access

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/rbac"
	"github.com/donorhub/donorhub/internal/shared"
)

const (
	mutationLimit  = 30
	mutationWindow = time.Minute
)

// Handler serves access workflow endpoints.
type Handler struct {
	logger   *slog.Logger
	manager  *Manager
	queue    *Queue
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, manager *Manager, queue *Queue, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, queue: queue, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httpx.ActorLimiter(mutationLimit, mutationWindow)
	r.Get("/access/me", h.handleStatus)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/access/{capability}/request", h.handleRequest)
		gr.Group(func(ar chi.Router) {
			ar.Use(h.rbac.RequireAll(permissions.RuleApproveAccess))
			ar.Post("/access/users/{userID}/{capability}/decide", h.handleDecide)
			ar.Post("/access/users/{userID}/{capability}/revoke", h.handleRevoke)
		})
	})
	r.With(h.rbac.RequireAll(permissions.RuleApproveAccess)).Get("/access/pending", h.handlePending)
}

type decideRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	status, err := h.manager.Status(r.Context(), actor.ID)
	if err != nil {
		h.respondError(w, "access status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCapability(chi.URLParam(r, "capability"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.manager.Request(r.Context(), actor, actor.ID, c); err != nil {
		h.respondError(w, "request access", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCapability(chi.URLParam(r, "capability"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req decideRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	decision, err := h.manager.Decide(r.Context(), actor, chi.URLParam(r, "userID"), c, *req.Granted)
	if err != nil {
		h.respondError(w, "decide access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCapability(chi.URLParam(r, "capability"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	decision, err := h.manager.Revoke(r.Context(), actor, chi.URLParam(r, "userID"), c)
	if err != nil {
		h.respondError(w, "revoke access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.queue.Pending(r.Context()))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrPermissionDenied) &&
		!errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrUnauthenticated) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
