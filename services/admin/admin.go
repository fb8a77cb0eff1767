package admin

import (
	"context"
	"errors"
	"strings"

	accountRepo "skylark/database/repository/account"
	"skylark/models"
	"skylark/services/group"
	"skylark/services/session"
	"skylark/utils"

	"go.uber.org/zap"
)

// ProtectedUsername is the account the console never deletes or demotes.
const ProtectedUsername = "admin"

var ErrProtectedAccount = errors.New("this account cannot be modified")

// DefaultAdminService is the production implementation.
type DefaultAdminService struct {
	Accounts accountRepo.AccountRepository
	Groups   *group.Service
	Devices  *session.DeviceService
	Logger   *zap.Logger
}

func NewAdminService(accounts accountRepo.AccountRepository, groups *group.Service, devices *session.DeviceService, logger *zap.Logger) *DefaultAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultAdminService{Accounts: accounts, Groups: groups, Devices: devices, Logger: logger}
}

// ListAccounts returns accounts newest first, filtered by a
// case-insensitive username substring.
func (s *DefaultAdminService) ListAccounts(ctx context.Context, search string) ([]models.Account, error) {
	accounts, err := s.Accounts.GetAll(ctx)
	if err != nil {
		return nil, utils.NewStoreError("list accounts", err)
	}
	needle := strings.ToLower(strings.TrimSpace(search))
	filtered := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		a.PasswordHash = ""
		if needle == "" || strings.Contains(strings.ToLower(a.Username), needle) {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func (s *DefaultAdminService) load(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.Accounts.GetByID(ctx, id)
	if err != nil {
		return nil, utils.NewStoreError("load account", err)
	}
	if acc == nil {
		return nil, session.ErrNotFound
	}
	return acc, nil
}

// DeleteAccount removes an account and its group memberships. Clients
// holding its session are logged out through their subscription.
func (s *DefaultAdminService) DeleteAccount(ctx context.Context, id string) error {
	acc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if acc.Username == ProtectedUsername {
		return ErrProtectedAccount
	}
	if err := s.Accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, accountRepo.ErrNotFound) {
			return session.ErrNotFound
		}
		return utils.NewStoreError("delete account", err)
	}
	if err := s.Groups.Groups.RemoveMemberEverywhere(ctx, id); err != nil {
		s.Logger.Warn("Failed to drop deleted account from groups", zap.String("accountId", id), zap.Error(err))
	}
	s.Logger.Info("Account deleted", zap.String("accountId", id), zap.String("username", acc.Username))
	return nil
}

func (s *DefaultAdminService) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	acc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if acc.Username == ProtectedUsername && !isAdmin {
		return ErrProtectedAccount
	}
	if err := s.Accounts.SetAdmin(ctx, id, isAdmin); err != nil {
		return utils.NewStoreError("set admin", err)
	}
	s.Logger.Info("Admin flag changed", zap.String("accountId", id), zap.Bool("isAdmin", isAdmin))
	return nil
}

func (s *DefaultAdminService) RevokeDevice(ctx context.Context, accountID, deviceID string) error {
	return s.Devices.RevokeDevice(ctx, accountID, deviceID)
}

// BootstrapAdmin grants admin rights to username if the account exists.
func (s *DefaultAdminService) BootstrapAdmin(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	acc, err := s.Accounts.GetByUsername(ctx, username)
	if err != nil {
		return utils.NewStoreError("bootstrap admin", err)
	}
	if acc == nil {
		s.Logger.Warn("Bootstrap admin account not registered yet", zap.String("username", username))
		return nil
	}
	if acc.IsAdmin {
		return nil
	}
	if err := s.Accounts.SetAdmin(ctx, acc.ID, true); err != nil {
		return utils.NewStoreError("bootstrap admin", err)
	}
	s.Logger.Info("Bootstrap admin granted", zap.String("username", username))
	return nil
}

func (s *DefaultAdminService) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.Groups.ListAll(ctx)
}

func (s *DefaultAdminService) DeleteGroup(ctx context.Context, id string) error {
	return s.Groups.Delete(ctx, id)
}

func (s *DefaultAdminService) RemoveGroupMember(ctx context.Context, groupID, memberID string) error {
	return s.Groups.RemoveMember(ctx, groupID, memberID)
}
