package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fntelecomllc/dnsguard/internal/sanitize"
)

// RespondError writes the uniform {"error": ...} envelope. For 5xx the
// message is always replaced with "internal_error"; 4xx messages are
// sanitized (length-capped, control characters stripped) before leaving
// the process.
func RespondError(c *gin.Context, status int, message string) {
	if status >= http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": sanitize.String(message, 500)})
}

// Recovery converts a panic in a downstream handler into a 500
// internal_error response instead of crashing the process.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, _ interface{}) {
		RespondError(c, http.StatusInternalServerError, "internal_error")
	})
}
