package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/get2knowme/pkg/errors"
	"github.com/charlesng35/get2knowme/pkg/logger"
	"github.com/charlesng35/get2knowme/pkg/response"
)

// RateLimitConfig bounds the number of requests per (client IP, route) within a fixed window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Store    RateStore
}

// RateLimit returns a middleware enforcing cfg. A zero limit or missing store disables it.
// Store failures are logged and the request is allowed through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Requests <= 0 || cfg.Window <= 0 || cfg.Store == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := "rl:" + c.ClientIP() + "|" + route

		count, resetIn, err := cfg.Store.Increment(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate store unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := cfg.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		reset := int(math.Ceil(resetIn.Seconds()))

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > cfg.Requests {
			c.Header("Retry-After", strconv.Itoa(reset))
			response.Error(c, apperrors.ErrRateLimit)
			return
		}

		c.Next()
	}
}
