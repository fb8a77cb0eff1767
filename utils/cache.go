// File: utils/cache.go
package utils

import (
	"context"
	"fmt"
	"time"

	"skylark/config"

	"github.com/go-redis/redis/v8"
)

// LocalStoreClient backs the per-client local state (sessions, watermarks).
var LocalStoreClient *redis.Client

// InitLocalStore connects the Redis client used for client-local state.
func InitLocalStore() error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisLocalDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis (local store): %w", err)
	}
	LocalStoreClient = client
	return nil
}

// GetLocalStoreClient returns the Redis client for client-local state.
func GetLocalStoreClient() *redis.Client {
	return LocalStoreClient
}
