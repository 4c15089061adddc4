// ratelimit.go provides per-client request rate limiting backed by Redis,
// using the GCRA-based redis_rate limiter so limits are enforced consistently
// across all server instances sharing the store.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
)

// RateLimitMiddleware returns a Gin handler that limits requests per client
// IP. When the limiter itself fails (Redis down, network error) the request
// is allowed through: availability wins over strict enforcement, and the
// failure is logged so operators can see the limiter is degraded.
func RateLimitMiddleware(client *redis.Client, cfg config.RateLimitingConfig) gin.HandlerFunc {
	if !cfg.Enabled || client == nil {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := redis_rate.NewLimiter(client)
	limit := redis_rate.Limit{
		Rate:   cfg.RequestsPerMinute,
		Period: time.Minute,
		Burst:  cfg.Burst,
	}

	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), "ratelimit:"+c.ClientIP(), limit)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))

		if res.Allowed == 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
