package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// HealthHandler serves the spec-mandated liveness probe plus a readiness
// probe that pings the store's connection pool, grounded on the teacher's
// health-check handler convention of never failing liveness on a dependency
// outage — only readiness reflects that.
type HealthHandler struct {
	db        *sqlx.DB
	startedAt time.Time
}

func NewHealthHandler(db *sqlx.DB) *HealthHandler {
	return &HealthHandler{db: db, startedAt: time.Now()}
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(h.startedAt).String()})
}

// Readyz handles GET /readyz: 200 while the store pool answers pings, 503
// when a ping fails. A handler built without a pool always answers 200.
func (h *HealthHandler) Readyz(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
