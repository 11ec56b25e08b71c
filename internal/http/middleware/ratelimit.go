// README: Per-caller rate limiting for high-frequency and abuse-prone endpoints.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"herodispatch/internal/ratelimit"
)

// RateLimit rejects callers that exhaust their bucket in l with 429.
// Callers are keyed by uid, falling back to the client IP.
func RateLimit(l *ratelimit.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := CallerUID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
