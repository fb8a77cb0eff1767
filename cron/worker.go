package cron

import (
	"context"
	"fmt"
	"time"

	"skylark/config"
	"skylark/models"
	"skylark/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AlertSender delivers one push payload. Implemented by notification.FCMService.
type AlertSender interface {
	SendAlert(ctx context.Context, p models.PushPayload) error
}

// QueueRedisOpt is the Redis connection shared by the alert queue client
// and the worker.
func QueueRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// RunAlertWorker processes queued push alerts until ctx is done.
func RunAlertWorker(ctx context.Context, redisOpts asynq.RedisClientOpt, sender AlertSender, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "alert-worker"))

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSendAlert, HandleAlertTask(sender, log))

	go monitorRedisConnection(ctx, redisOpts, log)

	log.Info("Starting alert worker")
	const maxAttempts = 5
	for attempts := 1; ; attempts++ {
		err := srv.Start(mux)
		if err == nil {
			break
		}
		log.Warn("Failed to start alert worker", zap.Int("attempt", attempts), zap.Error(err))
		if attempts == maxAttempts {
			return fmt.Errorf("alert worker: giving up after %d attempts: %w", maxAttempts, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(attempts*2) * time.Second):
		}
	}

	<-ctx.Done()
	srv.Shutdown()
	log.Info("Alert worker stopped")
	return nil
}

// HandleAlertTask sends one queued alert. Malformed payloads are not retried.
func HandleAlertTask(sender AlertSender, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := tasks.ParseAlertTask(task)
		if err != nil {
			logger.Warn("Dropping invalid alert task", zap.Error(err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if err := sender.SendAlert(ctx, p); err != nil {
			logger.Error("Failed to send push alert", zap.String("clientId", p.ClientID), zap.Error(err))
			return err
		}
		return nil
	}
}

// monitorRedisConnection pings the queue Redis periodically to detect
// failures at runtime.
func monitorRedisConnection(ctx context.Context, opts asynq.RedisClientOpt, logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil && ctx.Err() == nil {
				logger.Warn("Queue Redis connection lost", zap.Error(err))
			}
		}
	}
}
