package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leadscope/leadscope/internal/metrics"
	"github.com/leadscope/leadscope/internal/ratelimit"
)

// RateLimit enforces the category's token bucket per client IP. Denied
// requests get a 429 with Retry-After.
func RateLimit(limiter *ratelimit.Limiter, category string) gin.HandlerFunc {
	limit := ratelimit.CategoryLimit(category)

	return func(c *gin.Context) {
		identity := category + ":" + c.ClientIP()
		res := limiter.CheckLimit(identity, limit)

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			metrics.RateLimitDenials.WithLabelValues(category).Inc()
			c.Header("Retry-After", strconv.Itoa(res.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": res.RetryAfter,
			})
			return
		}
		c.Next()
	}
}
