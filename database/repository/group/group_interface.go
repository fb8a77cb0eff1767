package groupRepo

import (
	"context"
	"errors"

	"skylark/models"
)

var (
	ErrNotFound      = errors.New("group not found")
	ErrDuplicateCode = errors.New("group code already exists")
)

// GroupRepository defines methods for group data access.
type GroupRepository interface {
	GetByID(ctx context.Context, id string) (*models.Group, error)
	GetByCode(ctx context.Context, code string) (*models.Group, error)
	// ListByMember returns the groups that list accountID as a member.
	ListByMember(ctx context.Context, accountID string) ([]models.Group, error)
	GetAll(ctx context.Context) ([]models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	// AddMember is idempotent.
	AddMember(ctx context.Context, groupID, accountID string) error
	RemoveMember(ctx context.Context, groupID, accountID string) error
	// RemoveMemberEverywhere drops accountID from every group.
	RemoveMemberEverywhere(ctx context.Context, accountID string) error
	Delete(ctx context.Context, id string) error
}
