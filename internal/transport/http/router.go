// Package httptransport composes the HTTP surface: middleware stack, health
// and metrics endpoints, and the credential routes with their auth guards.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credhandler "attestor/internal/credential/handler"
	"attestor/internal/platform/health"
	"attestor/pkg/platform/middleware/auth"
	"attestor/pkg/platform/middleware/request"
)

// RouterConfig carries everything the router needs. Credentials and Logger
// are required; the rest is optional.
type RouterConfig struct {
	Logger         *slog.Logger
	Credentials    *credhandler.Handler
	Health         *health.Handler
	Validator      auth.TokenValidator
	Revocations    auth.TokenRevocationChecker
	Latency        *request.Metrics
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires all endpoints with the middleware stack. Issuance,
// revocation, and visibility routes require an authenticated caller;
// verification routes accept anonymous callers.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(cfg.Logger))
	if cfg.Latency != nil {
		r.Use(request.Latency(cfg.Latency))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(request.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(request.BodyLimit(cfg.MaxBodyBytes))
	}
	r.Use(request.ContentTypeJSON)

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(gr chi.Router) {
			gr.Use(auth.RequireAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
			cfg.Credentials.RegisterProtected(gr)
		})

		api.Group(func(gr chi.Router) {
			gr.Use(auth.OptionalAuth(cfg.Validator, cfg.Revocations, cfg.Logger))
			cfg.Credentials.RegisterPublic(gr)
		})
	})

	return r
}
