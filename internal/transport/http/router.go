// Package httptransport composes the HTTP surface: middleware, public
// strand and challenge routes, and the admin group.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strand/internal/platform/metrics"
	"strand/pkg/platform/middleware/admin"
	"strand/pkg/platform/middleware/metadata"
	"strand/pkg/platform/middleware/request"
	"strand/pkg/validation"
)

// DefaultRequestTimeout bounds every request handler.
const DefaultRequestTimeout = 30 * time.Second

// Routes is implemented by each feature handler.
type Routes interface {
	Register(r chi.Router)
}

// AdminRoutes is implemented by handlers with admin-only endpoints.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// Config lists everything mounted on the router.
type Config struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Metadata   *metadata.Config
	AdminToken string
	Timeout    time.Duration

	Health Routes
	Public []Routes
	Admin  []AdminRoutes
}

// NewRouter wires all endpoints with middleware.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	metaCfg := cfg.Metadata
	if metaCfg == nil {
		metaCfg = metadata.DefaultConfig()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(metaCfg).Handler)
	r.Use(request.Logger(logger))
	r.Use(chimw.Timeout(timeout))
	r.Use(request.ContentTypeJSON)
	r.Use(request.BodyLimit(validation.MaxBodySize))
	if cfg.Metrics != nil {
		r.Use(request.Latency(cfg.Metrics))
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	for _, routes := range cfg.Public {
		routes.Register(r)
	}

	r.Group(func(ar chi.Router) {
		ar.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
		for _, routes := range cfg.Admin {
			routes.RegisterAdmin(ar)
		}
	})

	return r
}
