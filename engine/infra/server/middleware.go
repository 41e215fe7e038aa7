package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/auth"
	"github.com/vimarsh-ai/vimarsh/engine/security"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const (
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Content-Type, Authorization, x-request-id, x-user-id, x-user-email, x-session-id"
)

// corsMiddleware sets the CORS headers on every response. Only origins
// on the configured allow-list are echoed back; an unlisted origin gets
// no allow header at all.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if _, ok := allowed[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", allowMethods)
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// loggerMiddleware attaches the root logger to the request context and
// logs one completion line per request.
func loggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := logger.ContextWithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		log.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}

// rateLimitMiddleware enforces the per-minute ceiling for a category.
// Authenticated requests are keyed by subject so one user cannot burn
// another's quota behind a shared NAT; anonymous requests fall back to
// the client IP.
func rateLimitMiddleware(
	limiter *security.RateLimiter,
	category security.Category,
	development bool,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if usr := auth.UserFromContext(c); usr != nil {
			key = usr.Subject
		}
		if err := limiter.Allow(c.Request.Context(), category, key); err != nil {
			security.LogSecurityEvent(c.Request.Context(), "rate_limit_exceeded", map[string]any{
				"category": string(category),
				"key":      key,
				"path":     c.Request.URL.Path,
			})
			respondError(c, development, err)
			return
		}
		c.Next()
	}
}
