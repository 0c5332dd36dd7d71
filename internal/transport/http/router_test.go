package httptransport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strand/internal/platform/health"
	"strand/internal/platform/metrics"
	"strand/pkg/platform/httputil"
	"strand/pkg/platform/middleware/request"
)

type echoRoutes struct{}

func (echoRoutes) Register(r chi.Router) {
	r.Get("/public/{id}", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"id":         chi.URLParam(r, "id"),
			"request_id": request.GetRequestID(r.Context()),
			"client_ip":  request.ClientIP(r.Context()),
		})
	})
	r.Post("/public/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func (echoRoutes) RegisterAdmin(r chi.Router) {
	r.Post("/admin/echo", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	})
}

func newTestRouter(t *testing.T) (http.Handler, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	return NewRouter(Config{
		Metrics:    m,
		Gatherer:   reg,
		AdminToken: "secret-admin-token",
		Health:     health.New("test"),
		Public:     []Routes{echoRoutes{}},
		Admin:      []AdminRoutes{echoRoutes{}},
	}), m
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRouteCarriesRequestMetadata(t *testing.T) {
	h, m := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/public/strand_1", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("X-Request-ID", "req-123")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "strand_1", body["id"])
	assert.Equal(t, "req-123", body["request_id"])
	assert.Equal(t, "192.0.2.10", body["client_ip"])

	assert.Equal(t, 1, promtestutil.CollectAndCount(m.EndpointLatency))
}

func TestRouter_AdminGroupRequiresToken(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/admin/echo", strings.NewReader("{}")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"access_denied"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/admin/echo", strings.NewReader("{}"))
	req.Header.Set("X-Admin-Token", "secret-admin-token")
	rec = serve(h, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouter_PublicRoutesSkipAdminToken(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RejectsNonJSONBodies(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/echo", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Admin-Token", "secret-admin-token")
	rec := serve(h, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/public/panic", strings.NewReader("{}")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRouter_ExposesMetrics(t *testing.T) {
	h, _ := newTestRouter(t)
	serve(h, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "strand_endpoint_latency_seconds")
}
