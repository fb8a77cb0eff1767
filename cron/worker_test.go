package cron

import (
	"context"
	"errors"
	"testing"

	"skylark/models"
	"skylark/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent []models.PushPayload
	err  error
}

func (f *fakeSender) SendAlert(_ context.Context, p models.PushPayload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func TestHandleAlertTaskSends(t *testing.T) {
	sender := &fakeSender{}
	task, _, err := tasks.NewAlertTask(models.PushPayload{ClientID: "c1", PushToken: "fcm-1", Title: "t", Body: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if err := HandleAlertTask(sender, zap.NewNop())(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].PushToken != "fcm-1" {
		t.Fatalf("sent = %+v", sender.sent)
	}
}

func TestHandleAlertTaskSkipsRetryOnBadPayload(t *testing.T) {
	sender := &fakeSender{}
	task := asynq.NewTask(tasks.TypeSendAlert, []byte(`{"clientId":"c1"}`))
	err := HandleAlertTask(sender, zap.NewNop())(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("want SkipRetry, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %+v", sender.sent)
	}
}

func TestHandleAlertTaskReturnsSendErrors(t *testing.T) {
	boom := errors.New("fcm down")
	sender := &fakeSender{err: boom}
	task, _, _ := tasks.NewAlertTask(models.PushPayload{ClientID: "c1", PushToken: "fcm-1"})
	if err := HandleAlertTask(sender, zap.NewNop())(context.Background(), task); !errors.Is(err, boom) {
		t.Fatalf("want send error, got %v", err)
	}
}
