package admin

import (
	"context"

	"skylark/models"
)

type AdminService interface {
	// Accounts
	ListAccounts(ctx context.Context, search string) ([]models.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	RevokeDevice(ctx context.Context, accountID, deviceID string) error
	BootstrapAdmin(ctx context.Context, username string) error

	// Groups
	ListGroups(ctx context.Context) ([]models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	RemoveGroupMember(ctx context.Context, groupID, memberID string) error
}
var _ AdminService = (*DefaultAdminService)(nil)
