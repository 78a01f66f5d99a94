package donations

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

// Handler serves donation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers donation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSidebar(permissions.SidebarDonations))
		r.Get("/donations", h.list)
		r.Post("/donations", h.create)
		r.With(h.rbac.RequireAll(permissions.RuleManageDonations)).Post("/donations/{donationID}/review", h.review)
	})
}

type reviewRequest struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list donations failed", slog.Any("error", err))
		rows = []Donation{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req NewDonation
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	d, err := h.service.Record(r.Context(), actor, req)
	if err != nil {
		h.respondError(w, "record donation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := httpx.DecodeJSON(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Review(r.Context(), actor, chi.URLParam(r, "donationID"), status); err != nil {
		h.respondError(w, "review donation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrPermissionDenied) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
