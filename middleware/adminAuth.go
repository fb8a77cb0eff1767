package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin allows only admins through. Must run after RequireSession.
// While impersonating, the current account is the target, so ending an
// impersonation is routed outside this guard.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := AccountFrom(c)
		if !ok || !account.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
