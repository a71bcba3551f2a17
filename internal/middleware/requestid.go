package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fntelecomllc/dnsguard/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID stamps every request with a correlation id, reusing one
// supplied by the caller via X-Request-ID or generating a uuid.UUID
// otherwise. The id rides the request context, so every log line the
// handler writes against that context carries it. Scheduler ticks run on
// their own background context and mailer failures are logged without the
// request context, so neither carries the id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		ctx := logging.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
