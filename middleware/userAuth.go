package middleware

import (
	"net/http"

	"skylark/models"

	"github.com/gin-gonic/gin"
)

// RequireSession rejects clients without a logged-in account and stores
// the current account in the context. Must run after ClientAuthMiddleware.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := ShellFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
			return
		}
		view := s.Current()
		if !view.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
			return
		}
		c.Set(AccountKey, *view.Account)
		c.Next()
	}
}

// AccountFrom returns the account stored by RequireSession.
func AccountFrom(c *gin.Context) (models.Account, bool) {
	v, ok := c.Get(AccountKey)
	if !ok {
		return models.Account{}, false
	}
	a, ok := v.(models.Account)
	return a, ok
}
