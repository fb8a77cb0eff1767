package notification

import (
	"context"
	"fmt"

	"skylark/models"
	"skylark/services/tasks"

	"firebase.google.com/go/v4/messaging"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client that PushNotifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PushNotifier queues alerts for delivery to a client's registered push
// token. Clients without a token are skipped.
type PushNotifier struct {
	Queue     Enqueuer
	ClientID  string
	PushToken func() string
}

func (p *PushNotifier) Notify(ctx context.Context, alert models.Alert) error {
	token := ""
	if p.PushToken != nil {
		token = p.PushToken()
	}
	if token == "" {
		return nil
	}
	task, opts, err := tasks.NewAlertTask(models.PushPayload{
		ClientID:  p.ClientID,
		PushToken: token,
		Title:     alert.Title(),
		Body:      alert.Body(),
		GroupID:   alert.GroupID,
		Kind:      string(alert.Kind),
	})
	if err != nil {
		return fmt.Errorf("failed to build alert task: %w", err)
	}
	if _, err := p.Queue.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue alert for client %s: %w", p.ClientID, err)
	}
	return nil
}

// PushSender is the part of *messaging.Client used to deliver pushes.
type PushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMService sends queued alerts through Firebase Cloud Messaging.
type FCMService struct {
	client PushSender
	log    *zap.Logger
}

func NewFCMService(client PushSender, logger *zap.Logger) (*FCMService, error) {
	if client == nil {
		return nil, fmt.Errorf("fcm service initialization error: messaging client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMService{client: client, log: logger}, nil
}

// BuildMessage renders a payload as a high priority FCM message.
func BuildMessage(p models.PushPayload) *messaging.Message {
	return &messaging.Message{
		Token: p.PushToken,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: map[string]string{
			"type":    "chat_alert",
			"kind":    p.Kind,
			"groupId": p.GroupID,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "chat_alerts",
				Sound:     "default",
				Tag:       p.GroupID,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:    "default",
					ThreadID: p.GroupID,
				},
			},
		},
	}
}

// SendAlert delivers one payload.
func (s *FCMService) SendAlert(ctx context.Context, p models.PushPayload) error {
	id, err := s.client.Send(ctx, BuildMessage(p))
	if err != nil {
		return fmt.Errorf("SendAlert: failed to send FCM message to client %s: %w", p.ClientID, err)
	}
	s.log.Debug("Push alert sent", zap.String("clientId", p.ClientID), zap.String("messageId", id))
	return nil
}
