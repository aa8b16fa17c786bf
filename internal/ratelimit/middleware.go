package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionIDKey is where SessionRateLimit leaves the session ID for handlers.
const SessionIDKey = "session_id"

type Middleware struct {
	limiter RateLimiter
}

func NewMiddleware(limiter RateLimiter) *Middleware {
	return &Middleware{
		limiter: limiter,
	}
}

// IPRateLimit middleware for general IP-based rate limiting
func (m *Middleware) IPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := m.limiter.AllowIPRequest(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"message": "Failed to check rate limit", "code": "INTERNAL_ERROR"},
			})
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   gin.H{"message": "Rate limit exceeded. Please try again later.", "code": "RATE_LIMIT_IP"},
			})
			return
		}

		c.Next()
	}
}

// SessionRateLimit requires a session ID from the X-Session-ID header or the
// session_id query parameter and stores it in the context.
func (m *Middleware) SessionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("X-Session-ID")
		if sessionID == "" {
			sessionID = c.Query("session_id")
		}

		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"message": "Session ID required", "code": "SESSION_REQUIRED"},
			})
			return
		}

		c.Set(SessionIDKey, sessionID)
		c.Next()
	}
}
