package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/donorhub/donorhub/internal/observability"
	"github.com/donorhub/donorhub/internal/platform/httpx"
	"github.com/donorhub/donorhub/internal/shared"
)

// Identity headers set by the upstream identity proxy.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserName   = "X-User-Name"
	HeaderUserEmail  = "X-User-Email"
	HeaderUserAvatar = "X-User-Avatar"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// IdentityMiddleware attaches the actor carried by the identity headers.
// Requests without X-User-ID continue anonymously.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.Actor{
			ID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Name:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			Avatar: strings.TrimSpace(r.Header.Get(HeaderUserAvatar)),
		}
		if actor.IsZero() {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// MiddlewareStack installs the DonorHub middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					httpx.Problem(w, http.StatusBadRequest, "Request Blocked", "The request did not meet transport requirements.")
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		httprate.Limit(120, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "Slow down and try again shortly.")
			}),
		),
		IdentityMiddleware,
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}
