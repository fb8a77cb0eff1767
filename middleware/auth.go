package middleware

import (
	"net/http"
	"strings"

	"skylark/shell"
	"skylark/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by the auth middlewares.
const (
	ClientIDKey = "clientID"
	ShellKey    = "shell"
	AccountKey  = "account"
)

// bearerToken reads the client token from the Authorization header. Event
// streams opened by EventSource cannot set headers, so a "token" query
// parameter is accepted as well.
func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Query("token")
}

// ClientAuthMiddleware resolves the bearer client token to the client's
// shell, creating and restoring it on first use.
func ClientAuthMiddleware(tokens *utils.ClientTokens, registry *shell.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		clientID, err := tokens.ClientID(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid client token"})
			return
		}

		s, err := registry.Get(c.Request.Context(), clientID, DeviceDescriptor(c))
		if err != nil {
			utils.GetLogger().Error("Failed to restore client shell", zap.String("clientId", clientID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Something went wrong. Please try again."})
			return
		}

		c.Set(ClientIDKey, clientID)
		c.Set(ShellKey, s)
		c.Next()
	}
}

// ShellFrom returns the shell stored by ClientAuthMiddleware.
func ShellFrom(c *gin.Context) (*shell.Shell, bool) {
	v, ok := c.Get(ShellKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*shell.Shell)
	return s, ok
}
