// Package observability wires Prometheus metrics and OpenTelemetry tracing
// around the HTTP surface and the background scheduler.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector this process registers.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SchedulerTicksTotal *prometheus.CounterVec
	SchedulerActiveJobs prometheus.Gauge
	DNSLookupDuration   *prometheus.HistogramVec
	RateLimitRejections prometheus.Counter
}

// NewMetrics registers and returns the collector set against the default
// Prometheus registerer. Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the collector set against reg, letting tests
// use an isolated prometheus.NewRegistry() instead of the process-global
// default (which panics on duplicate registration across test cases).
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsguard_http_requests_total",
			Help: "Total HTTP requests by route and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dnsguard_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		SchedulerTicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsguard_scheduler_ticks_total",
			Help: "Total scheduler validation ticks by outcome.",
		}, []string{"outcome"}),
		SchedulerActiveJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dnsguard_scheduler_active_jobs",
			Help: "Current number of running polling jobs.",
		}),
		DNSLookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dnsguard_dns_lookup_duration_seconds",
			Help:    "DNS lookup latency by record type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"record_type"}),
		RateLimitRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsguard_rate_limit_rejections_total",
			Help: "Total requests rejected by the per-IP rate limiter.",
		}),
	}
}

// GinMiddleware records request count and latency for every route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		m.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
