package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/donorhub/donorhub/internal/shared"
)

// ActorRateKey keys rate limits by actor id, falling back to client IP.
func ActorRateKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "actor:" + strings.TrimSpace(actor.ID), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// ActorLimiter limits requests per actor within window.
func ActorLimiter(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(ActorRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			Problem(w, http.StatusTooManyRequests, "Too Many Requests", "Slow down and try again shortly.")
		}),
	)
}
