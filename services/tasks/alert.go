package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"skylark/models"

	"github.com/hibiken/asynq"
)

const TypeSendAlert = "alert:push"

// NewAlertTask builds a push delivery task for one client.
func NewAlertTask(payload models.PushPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSendAlert, b)
	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(30 * time.Second),
	}
	return task, opts, nil
}

// ParseAlertTask decodes a task built by NewAlertTask.
func ParseAlertTask(task *asynq.Task) (models.PushPayload, error) {
	var p models.PushPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid alert payload: %w", err)
	}
	if p.PushToken == "" {
		return p, fmt.Errorf("alert payload for client %s has no push token", p.ClientID)
	}
	return p, nil
}
