package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
)

const userContextKey = "vimarsh:auth:user"

// WithUser attaches the authenticated user to the request context.
func WithUser(c *gin.Context, u *user.User) {
	c.Set(userContextKey, u)
}

// UserFromContext returns the authenticated user, or nil when the request
// passed through without authentication (auth disabled).
func UserFromContext(c *gin.Context) *user.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	u, _ := v.(*user.User)
	return u
}
