package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/mailer"
	"github.com/fntelecomllc/dnsguard/internal/middleware"
	"github.com/fntelecomllc/dnsguard/internal/observability"
	"github.com/fntelecomllc/dnsguard/internal/validation"
)

func newTestRouter(t *testing.T, metricsRouteEnabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs := newFakeStore()
	fv := &fakeValidator{}
	logger := logging.New(logging.LevelError)
	sched := newTestScheduler(t, fs, fv)
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())

	intake := NewIntakeHandler(fs, sched, fv, mailer.NoopNotifier{}, logger, time.Minute, time.Hour, 20000)
	query := NewQueryHandler(fs, fv, validation.Profile{}, logger, "", time.Second, 20000)
	health := NewHealthHandler(nil)
	rateLimiter := middleware.NewRateLimiter(metrics)

	return NewRouter(intake, query, health, rateLimiter, metrics, metricsRouteEnabled)
}

func TestRouter_HealthzAlwaysReachable(t *testing.T) {
	router := newTestRouter(t, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRouter_RequestUIAlwaysGone(t *testing.T) {
	router := newTestRouter(t, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/request/ui", nil))
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", w.Code)
	}
}

func TestRouter_MetricsRouteGatedByFlag(t *testing.T) {
	enabled := newTestRouter(t, true)
	w := httptest.NewRecorder()
	enabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected /metrics to be served when enabled, got %d", w.Code)
	}

	disabled := newTestRouter(t, false)
	w2 := httptest.NewRecorder()
	disabled.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w2.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent when disabled, got %d", w2.Code)
	}
}

func TestRouter_StampsRequestIDHeader(t *testing.T) {
	router := newTestRouter(t, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID to be stamped on the response")
	}
}

func TestRouter_EmailRouteRejectsNonJSON(t *testing.T) {
	router := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodPost, "/request/email", nil)
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for non-JSON content type, got %d", w.Code)
	}
}
