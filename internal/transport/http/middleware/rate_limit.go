package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/port"
)

// RateLimitRule configures a sliding-window limit for one endpoint.
type RateLimitRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// RateLimiter applies sliding-window limits keyed by client IP. The limiter
// is advisory: store failures log and let the request through rather than
// locking out clients on an infrastructure hiccup.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Limit returns a middleware enforcing the rule against the client IP.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.store == nil || rule.Limit <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		identifier := rule.Name + ":" + c.ClientIP()
		now := rl.now()
		ctx := c.Request.Context()

		if err := rl.store.TrimWindow(ctx, identifier, rule.Window, now); err != nil {
			rl.failOpen(c, err)
			return
		}

		count, err := rl.store.CountAttempts(ctx, identifier, rule.Window, now)
		if err != nil {
			rl.failOpen(c, err)
			return
		}

		if count >= rule.Limit {
			retryAfter := int(math.Ceil(rule.Window.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				newErrorResponse(c, "too many requests"))
			return
		}

		if err := rl.store.RecordAttempt(ctx, identifier, now); err != nil {
			rl.logger.Warn("rate limit record failed", zap.Error(err))
		}

		c.Next()
	}
}

func (rl *RateLimiter) failOpen(c *gin.Context, err error) {
	rl.logger.Warn("rate limit store unavailable, allowing request", zap.Error(err))
	c.Next()
}
