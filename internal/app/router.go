package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/donorhub/donorhub/internal/access"
	"github.com/donorhub/donorhub/internal/archive"
	audithttp "github.com/donorhub/donorhub/internal/audit/http"
	"github.com/donorhub/donorhub/internal/donations"
	"github.com/donorhub/donorhub/internal/observability"
	permissionshttp "github.com/donorhub/donorhub/internal/permissions/http"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/rbac"
	"github.com/donorhub/donorhub/internal/users"
	"github.com/donorhub/donorhub/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Core    *Core
	Metrics *observability.Metrics
	// JobHandler is optional; it is nil when no queue is configured.
	JobHandler *jobs.Handler
}

// NewRouter constructs the chi.Router with DonorHub defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		params.JobHandler.MountRoutes(r)
	}

	core := params.Core
	if core == nil {
		return r
	}
	rbacMiddleware := rbac.Middleware{Guard: core.Guard, Logger: logger}

	r.Route("/api", func(api chi.Router) {
		users.NewHandler(logger, core.Users, rbacMiddleware).MountRoutes(api)
		donations.NewHandler(logger, core.Donations, rbacMiddleware).MountRoutes(api)
		permissionshttp.NewHandler(logger, core.Permissions, rbacMiddleware).MountRoutes(api)
		access.NewHandler(logger, core.Access, core.Queue, rbacMiddleware).MountRoutes(api)
		archive.NewHandler(logger, core.Archive, rbacMiddleware).MountRoutes(api)
		audithttp.NewHandler(logger, core.Timeline, rbacMiddleware).MountRoutes(api)
	})
	return r
}
