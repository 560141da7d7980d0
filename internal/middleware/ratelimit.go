package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/coursebay/backend/pkg/response"
)

// RateLimiter enforces a fixed-window per-IP request limit backed by Redis,
// so the counter is shared across processes. A Redis error fails open.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a Redis-backed rate limiter.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Limit returns a middleware limiting each client IP to limit requests per
// window. keySuffix separates independent limits (e.g. "api", "auth").
func (rl *RateLimiter) Limit(keySuffix string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		key := fmt.Sprintf("rate_limit:%s:%s", keySuffix, ip)

		count, err := rl.client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			c.Next()
			return
		}
		// First request in the window starts the clock.
		if count == 1 {
			rl.client.Expire(c.Request.Context(), key, window)
		}

		if count > int64(limit) {
			ttl, _ := rl.client.TTL(c.Request.Context(), key).Result()
			if ttl < 0 {
				ttl = window
			}
			c.Header("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			response.TooManyRequests(c, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
