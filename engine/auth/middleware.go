package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// Middleware authenticates every request carrying a bearer token. When
// enabled is false the chain passes through without a user; handlers that
// need identity use RequireRole or RequirePermission behind it.
func Middleware(svc *Service, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		raw := bearerToken(c.GetHeader("Authorization"))
		usr, err := svc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("authentication failed",
				"code", core.CodeOf(err), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access denied"})
			return
		}
		WithUser(c, usr)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user holds at
// least the given role. Role ordering is user < admin < super_admin.
func RequireRole(minimum user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		usr := UserFromContext(c)
		if usr == nil || !usr.Role.AtLeast(minimum) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the user's bundle contains the
// named permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		usr := UserFromContext(c)
		if usr == nil || !usr.HasPermission(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
