package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/wasmfetch/errors"
	"github.com/kbukum/wasmfetch/resilience"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter configures the token bucket kept per key.
	Limiter resilience.RateLimiterConfig
	// KeyFunc extracts the rate limit key from a request. Defaults to client IP.
	KeyFunc func(*gin.Context) string
	// SkipPaths bypass the limiter.
	SkipPaths []string
}

// RateLimit rejects requests with 429, a Retry-After header and a
// RATE_LIMITED body when the key's bucket is empty.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPBasedKey
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	var mu sync.Mutex
	limiters := make(map[string]*resilience.RateLimiter)

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		mu.Lock()
		rl, ok := limiters[key]
		if !ok {
			rl = resilience.NewRateLimiter(cfg.Limiter)
			limiters[key] = rl
		}
		mu.Unlock()

		if !rl.Allow() {
			secs := int(math.Ceil(rl.RetryAfter().Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
			appErr := apperrors.New(apperrors.ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, appErr.ToResponse())
			return
		}
		c.Next()
	}
}

// IPBasedKey extracts the client IP for use as a rate limit key.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}
