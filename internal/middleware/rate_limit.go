package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/coinscope/internal/ratelimit"
	"github.com/yourorg/coinscope/internal/utils"
	"go.uber.org/zap"
)

// ClientKey identifies the caller a rate limit applies to
type ClientKey func(c *gin.Context) string

// ByClientIP limits per remote address
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// BySession limits per session, falling back to the remote address on
// unauthenticated routes
func BySession(c *gin.Context) string {
	if sessionID := c.GetString(SessionIDKey); sessionID != "" {
		return "session:" + sessionID
	}
	return ByClientIP(c)
}

// RateLimit rejects requests over the limiter's budget with 429.
// A failing limiter lets the request through.
func RateLimit(limiter ratelimit.Limiter, key ClientKey, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := key(c)

		decision, err := limiter.Allow(c.Request.Context(), clientKey)
		if err != nil {
			logger.Error("Rate limit check failed", zap.Error(err), zap.String("key", clientKey))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(time.Until(decision.Reset).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			logger.Debug("Rate limit exceeded", zap.String("key", clientKey))
			utils.AbortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
			return
		}

		c.Next()
	}
}
