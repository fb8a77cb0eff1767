package group

import (
	"context"
	"errors"
	"strings"

	groupRepo "skylark/database/repository/group"
	messageRepo "skylark/database/repository/message"
	"skylark/models"
	"skylark/utils"

	"go.uber.org/zap"
)

var (
	ErrNameRequired  = errors.New("group name is required")
	ErrCodeRequired  = errors.New("group code is required")
	ErrInvalidCode   = errors.New("invalid group code")
	ErrCodeTaken     = errors.New("code already taken, choose another")
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("not a member of this group")
)

// Service manages groups and their member lists.
type Service struct {
	Groups   groupRepo.GroupRepository
	Messages messageRepo.MessageRepository
	Logger   *zap.Logger
}

func NewService(groups groupRepo.GroupRepository, messages messageRepo.MessageRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Groups: groups, Messages: messages, Logger: logger}
}

// Create persists a group with the creator as its only member.
func (s *Service) Create(ctx context.Context, creatorID, name, code string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if code == "" {
		return nil, ErrCodeRequired
	}
	if name == "" {
		return nil, ErrNameRequired
	}

	existing, err := s.Groups.GetByCode(ctx, code)
	if err != nil {
		return nil, utils.NewStoreError("check group code", err)
	}
	if existing != nil {
		return nil, ErrCodeTaken
	}

	g := &models.Group{
		Name:      name,
		Code:      code,
		CreatedBy: creatorID,
		Members:   []string{creatorID},
	}
	if err := s.Groups.Create(ctx, g); err != nil {
		if errors.Is(err, groupRepo.ErrDuplicateCode) {
			return nil, ErrCodeTaken
		}
		return nil, utils.NewStoreError("create group", err)
	}
	s.Logger.Info("Group created", zap.String("groupId", g.ID), zap.String("creatorId", creatorID))
	return g, nil
}

// Join adds accountID to the group with the given code. Joining twice is
// harmless.
func (s *Service) Join(ctx context.Context, accountID, code string) (*models.Group, error) {
	if code == "" {
		return nil, ErrCodeRequired
	}
	g, err := s.Groups.GetByCode(ctx, code)
	if err != nil {
		return nil, utils.NewStoreError("find group", err)
	}
	if g == nil {
		return nil, ErrInvalidCode
	}
	if err := s.Groups.AddMember(ctx, g.ID, accountID); err != nil {
		return nil, s.mapUpdateErr("join group", err)
	}
	if !g.HasMember(accountID) {
		g.Members = append(g.Members, accountID)
	}
	return g, nil
}

// Leave removes accountID from groupID.
func (s *Service) Leave(ctx context.Context, accountID, groupID string) error {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(accountID) {
		return ErrNotMember
	}
	return s.mapUpdateErr("leave group", s.Groups.RemoveMember(ctx, groupID, accountID))
}

// RemoveMember drops memberID from groupID regardless of who asks.
func (s *Service) RemoveMember(ctx context.Context, groupID, memberID string) error {
	return s.mapUpdateErr("remove member", s.Groups.RemoveMember(ctx, groupID, memberID))
}

func (s *Service) mapUpdateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, groupRepo.ErrNotFound) {
		return ErrGroupNotFound
	}
	return utils.NewStoreError(op, err)
}

// ListForMember returns the groups accountID belongs to, newest first.
func (s *Service) ListForMember(ctx context.Context, accountID string) ([]models.Group, error) {
	groups, err := s.Groups.ListByMember(ctx, accountID)
	if err != nil {
		return nil, utils.NewStoreError("list groups", err)
	}
	return groups, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Group, error) {
	g, err := s.Groups.GetByID(ctx, id)
	if err != nil {
		return nil, utils.NewStoreError("load group", err)
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// GetForMember loads a group and checks membership.
func (s *Service) GetForMember(ctx context.Context, accountID, groupID string) (*models.Group, error) {
	g, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.HasMember(accountID) {
		return nil, ErrNotMember
	}
	return g, nil
}

func (s *Service) ListAll(ctx context.Context) ([]models.Group, error) {
	groups, err := s.Groups.GetAll(ctx)
	if err != nil {
		return nil, utils.NewStoreError("list groups", err)
	}
	return groups, nil
}

// Delete removes a group and its messages.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Groups.Delete(ctx, id); err != nil {
		return s.mapUpdateErr("delete group", err)
	}
	if s.Messages != nil {
		if err := s.Messages.DeleteByGroup(ctx, id); err != nil {
			s.Logger.Warn("Failed to delete group messages", zap.String("groupId", id), zap.Error(err))
		}
	}
	s.Logger.Info("Group deleted", zap.String("groupId", id))
	return nil
}
