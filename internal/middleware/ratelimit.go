package middleware

import (
	"log"
	"math"
	"net/http"
	"strconv"

	"lazla/internal/pkg/response"
	"lazla/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit counts requests per client IP and route. Store failures are
// logged and the request goes through.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + "|" + c.FullPath()
		decision, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.Printf("level=warn msg=\"rate limit store error\" key=%s err=%v", key, err)
		}
		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Next()
	}
}
