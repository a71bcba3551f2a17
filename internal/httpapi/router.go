package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fntelecomllc/dnsguard/internal/middleware"
	"github.com/fntelecomllc/dnsguard/internal/observability"
)

// NewRouter assembles the Gin engine exactly the way the teacher's
// apiserver composes its middleware chain: recovery first, then a
// request-id stamp, then security headers, then metrics, then per-IP
// rate limiting, before any route group.
func NewRouter(intake *IntakeHandler, query *QueryHandler, health *HealthHandler, rateLimiter *middleware.RateLimiter, metrics *observability.Metrics, metricsRouteEnabled bool) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(metrics.GinMiddleware())
	router.Use(rateLimiter.Middleware())

	router.GET("/healthz", health.Healthz)
	router.GET("/readyz", health.Readyz)
	if metricsRouteEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// /request/ui is intentionally registered outside the JSON content-type
	// gate: it always answers 410 regardless of how the client calls it.
	router.POST("/request/ui", intake.PostUI)

	requestGroup := router.Group("/request")
	requestGroup.Use(middleware.RequireJSON())
	{
		requestGroup.POST("/email", intake.PostEmail)
	}

	router.GET("/api/checkdns/:target", query.GetCheckDNS)

	return router
}
