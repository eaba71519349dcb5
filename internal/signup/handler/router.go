package handler

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"signup-api/internal/platform/health"
	request "signup-api/pkg/platform/middleware/request"
)

// BasePath is the prefix every public route is mounted under.
const BasePath = "/signup-api"

type routerConfig struct {
	requestTimeout time.Duration
}

type RouterOption func(*routerConfig)

// WithRequestTimeout bounds each request; zero leaves requests unbounded.
func WithRequestTimeout(d time.Duration) RouterOption {
	return func(c *routerConfig) {
		c.requestTimeout = d
	}
}

// NewRouter assembles the public HTTP surface. Security headers run first so
// 404s, panics, timeouts and health responses carry them too.
func NewRouter(h *Handler, healthHandler *health.Handler, logger *slog.Logger, latency *request.Metrics, opts ...RouterOption) chi.Router {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	r.Use(request.SecurityHeaders)
	r.Use(request.RequestID)
	r.Use(request.ClientMetadata)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(request.Timeout(cfg.requestTimeout))
	r.Use(request.LatencyMiddleware(latency))

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Route(BasePath, func(r chi.Router) {
		healthHandler.Register(r)
		h.Register(r)
	})

	return r
}
