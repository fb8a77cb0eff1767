package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	groupRepo "skylark/database/repository/group"
	messageRepo "skylark/database/repository/message"
	"skylark/models"
	"skylark/services/group"
)

func setup(t *testing.T) (*Service, *messageRepo.MemoryMessageRepo, *models.Group) {
	t.Helper()
	messages := messageRepo.NewMemoryMessageRepo()
	groups := group.NewService(groupRepo.NewMemoryGroupRepo(), messages, nil)
	g, err := groups.Create(context.Background(), "u1", "Climbers", "CLIMB")
	if err != nil {
		t.Fatal(err)
	}
	return NewService(messages, groups), messages, g
}

func TestSendStampsServerTime(t *testing.T) {
	ctx := context.Background()
	svc, messages, g := setup(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	messages.Now = func() time.Time { return fixed }

	msg, err := svc.Send(ctx, models.Account{ID: "u1", Username: "uma"}, g.ID, "  hello ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !msg.CreatedAt.Equal(fixed) {
		t.Fatalf("createdAt = %v", msg.CreatedAt)
	}
	if msg.Text != "  hello " || msg.SenderName != "uma" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, g := setup(t)

	if _, err := svc.Send(ctx, models.Account{ID: "u1"}, g.ID, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("want ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Send(ctx, models.Account{ID: "stranger"}, g.ID, "hi"); !errors.Is(err, group.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
	if _, err := svc.Send(ctx, models.Account{ID: "u1"}, "nope", "hi"); !errors.Is(err, group.ErrGroupNotFound) {
		t.Fatalf("want ErrGroupNotFound, got %v", err)
	}
}

func TestListSortedByTime(t *testing.T) {
	ctx := context.Background()
	svc, messages, g := setup(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stamps := []time.Time{base.Add(2 * time.Second), base, base.Add(time.Second)}
	for i, ts := range stamps {
		ts := ts
		messages.Now = func() time.Time { return ts }
		if _, err := svc.Send(ctx, models.Account{ID: "u1"}, g.ID, string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := svc.List(ctx, "u1", g.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := ""
	for _, m := range msgs {
		got += m.Text
	}
	if got != "bca" {
		t.Fatalf("order = %q, want bca", got)
	}
	if _, err := svc.List(ctx, "stranger", g.ID); !errors.Is(err, group.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
}
