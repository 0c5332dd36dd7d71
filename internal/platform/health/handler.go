// Package health serves liveness, readiness and status probes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"strand/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc probes one dependency and returns nil when it is usable.
type CheckFunc func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// Probe results. Failure details go to the log, not the response.
const (
	StateUp   = "up"
	StateDown = "down"
)

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type Handler struct {
	started     time.Time
	environment string
	logger      *slog.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

func New(environment string, opts ...Option) *Handler {
	h := &Handler{
		started:     time.Now(),
		environment: environment,
		logger:      slog.Default(),
		checks:      make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCheck adds a readiness probe; a later call with the same name
// replaces the earlier one.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

type LivenessResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{Status: "alive"})
}

type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs every probe in parallel under a shared deadline and
// answers 503 when any of them fails.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	results := h.runChecks(ctx)
	resp := ReadinessResponse{Status: "ready", Checks: results}
	status := http.StatusOK
	for _, state := range results {
		if state != StateUp {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
	)
	for name, check := range h.checks {
		wg.Go(func() {
			state := StateUp
			if err := check(ctx); err != nil {
				state = StateDown
				h.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			}
			mu.Lock()
			results[name] = state
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
