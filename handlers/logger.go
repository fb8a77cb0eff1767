package handlers

import (
	"skylark/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getLogger retrieves a Zap logger from the Gin context or falls back to
// the process logger. The client id is attached when known.
func getLogger(c *gin.Context) *zap.Logger {
	logger := utils.GetLogger()
	if l, exists := c.Get("logger"); exists {
		if ctxLogger, ok := l.(*zap.Logger); ok {
			logger = ctxLogger
		}
	}
	if id := c.GetString("clientID"); id != "" {
		logger = logger.With(zap.String("clientId", id))
	}
	return logger
}
