package chat

import (
	"context"
	"errors"
	"strings"

	messageRepo "skylark/database/repository/message"
	"skylark/models"
	"skylark/services/group"
	"skylark/utils"
)

// ErrEmptyMessage is returned for blank text.
var ErrEmptyMessage = errors.New("message text is required")

// HistoryLimit caps how many messages List returns.
const HistoryLimit = 500

// Service sends and lists group messages.
type Service struct {
	Messages messageRepo.MessageRepository
	Groups   *group.Service
}

func NewService(messages messageRepo.MessageRepository, groups *group.Service) *Service {
	return &Service{Messages: messages, Groups: groups}
}

// Send stores text from sender in groupID. The text is kept as typed;
// only an all-blank message is rejected.
func (s *Service) Send(ctx context.Context, sender models.Account, groupID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.Groups.GetForMember(ctx, sender.ID, groupID); err != nil {
		return nil, err
	}
	msg := &models.Message{
		GroupID:    groupID,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		Text:       text,
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return nil, utils.NewStoreError("send message", err)
	}
	return msg, nil
}

// List returns a group's messages sorted by server time.
func (s *Service) List(ctx context.Context, accountID, groupID string) ([]models.Message, error) {
	if _, err := s.Groups.GetForMember(ctx, accountID, groupID); err != nil {
		return nil, err
	}
	msgs, err := s.Messages.ListByGroup(ctx, groupID, HistoryLimit)
	if err != nil {
		return nil, utils.NewStoreError("list messages", err)
	}
	models.SortByTime(msgs)
	return msgs, nil
}
