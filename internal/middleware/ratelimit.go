// Package middleware holds the Gin edge concerns: per-IP rate limiting,
// content-type gating, the uniform error envelope, and security headers.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fntelecomllc/dnsguard/internal/observability"
)

const (
	rateLimitWindow      = 60 * time.Second
	rateLimitMaxRequests = 60
	rateLimitEvictAfter  = 10 * rateLimitWindow
)

type ipState struct {
	count    int
	resetAt  time.Time
	lastSeen time.Time
}

// RateLimiter enforces a sliding 60-requests-per-60-seconds window per
// client IP, evicting entries that have gone quiet for 10 windows.
type RateLimiter struct {
	mu      sync.Mutex
	ips     map[string]*ipState
	metrics *observability.Metrics
}

func NewRateLimiter(metrics *observability.Metrics) *RateLimiter {
	return &RateLimiter{ips: make(map[string]*ipState), metrics: metrics}
}

// Allow reports whether ip may proceed, recording the hit either way.
func (r *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked(now)

	st, ok := r.ips[ip]
	if !ok || now.After(st.resetAt) {
		st = &ipState{count: 0, resetAt: now.Add(rateLimitWindow)}
		r.ips[ip] = st
	}
	st.lastSeen = now
	st.count++
	return st.count <= rateLimitMaxRequests
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	for ip, st := range r.ips {
		if now.Sub(st.lastSeen) > rateLimitEvictAfter {
			delete(r.ips, ip)
		}
	}
}

// clientIP prefers a leading X-Forwarded-For hop over Gin's own ClientIP,
// since the rate limiter sits behind a proxy in every real deployment.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}

// Middleware rejects requests over the per-IP limit with 429 rate_limited.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)
		if !r.Allow(ip) {
			if r.metrics != nil {
				r.metrics.RateLimitRejections.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}
