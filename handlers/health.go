package handlers

import (
	"net/http"

	"skylark/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler reports liveness plus the last dependency check.
type HealthHandler struct {
	Redis *redis.Client
	Mongo *mongo.Client
}

func NewHealthHandler(redisClient *redis.Client, mongoClient *mongo.Client) *HealthHandler {
	return &HealthHandler{Redis: redisClient, Mongo: mongoClient}
}

// HealthCheckHandler handles GET /health.
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	status := utils.GetHealthStatus()
	if status.CheckedAt.IsZero() {
		status = utils.CheckHealth(c.Request.Context(), h.Redis, h.Mongo)
	}
	state := "ok"
	if !status.Mongo || !status.Redis {
		state = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       state,
		"message":      "Hi, I'm Skylark",
		"dependencies": status,
	})
}
