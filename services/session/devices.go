package session

import (
	"context"

	accountRepo "skylark/database/repository/account"
	"skylark/models"
	"skylark/utils"
)

// DeviceService manages an account's device history. Revocation reaches a
// still-connected client only through its account subscription.
type DeviceService struct {
	Repo accountRepo.AccountRepository
}

func NewDeviceService(repo accountRepo.AccountRepository) *DeviceService {
	return &DeviceService{Repo: repo}
}

func (s *DeviceService) load(ctx context.Context, accountID string) (*models.Account, error) {
	acc, err := s.Repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, utils.NewStoreError("load account", err)
	}
	if acc == nil {
		return nil, ErrNotFound
	}
	return acc, nil
}

// List returns the device history and the account's active token.
func (s *DeviceService) List(ctx context.Context, accountID string) ([]models.Device, string, error) {
	acc, err := s.load(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	if acc.Devices == nil {
		acc.Devices = []models.Device{}
	}
	return acc.Devices, acc.ActiveToken, nil
}

// RevokeDevice removes one device. Revoking the live device also clears
// activeToken, even when the live token has no history entry.
func (s *DeviceService) RevokeDevice(ctx context.Context, accountID, deviceID string) error {
	if _, err := s.load(ctx, accountID); err != nil {
		return err
	}
	pulled, err := s.Repo.PullDevice(ctx, accountID, deviceID)
	if err != nil {
		return utils.NewStoreError("revoke device", err)
	}
	cleared, err := s.Repo.ClearActiveTokenIf(ctx, accountID, deviceID)
	if err != nil {
		return utils.NewStoreError("revoke device", err)
	}
	if !pulled && !cleared {
		return ErrDeviceNotFound
	}
	return nil
}

// pruneAttempts bounds how often RevokeAllOtherDevices rereads the account
// after a login moved activeToken under it.
const pruneAttempts = 3

// RevokeAllOtherDevices keeps only the device matching activeToken. The
// write is guarded on the token it read.
func (s *DeviceService) RevokeAllOtherDevices(ctx context.Context, accountID string) error {
	for i := 0; i < pruneAttempts; i++ {
		acc, err := s.load(ctx, accountID)
		if err != nil {
			return err
		}
		ok, err := s.Repo.PruneDevices(ctx, accountID, acc.ActiveToken)
		if err != nil {
			return utils.NewStoreError("revoke devices", err)
		}
		if ok {
			return nil
		}
	}
	return ErrSessionChanged
}
