package accountRepo

import (
	"context"
	"errors"

	"skylark/models"
)

var (
	// ErrNotFound is returned by updates that matched no document.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateUsername is returned when the unique username index rejects an insert.
	ErrDuplicateUsername = errors.New("username already exists")
)

// AccountRepository defines methods for account data access.
type AccountRepository interface {
	// GetByID retrieves an account by id. Returns nil, nil if absent.
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// GetByUsername retrieves an account by exact username. Returns nil, nil if absent.
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	// GetAll retrieves every account, newest first, without password hashes.
	GetAll(ctx context.Context) ([]models.Account, error)
	// Create inserts a new account, assigning an id when empty.
	Create(ctx context.Context, account *models.Account) error
	// SetSession writes the active token and the device history together.
	SetSession(ctx context.Context, id, token string, devices []models.Device) error
	// PullDevice removes the device with deviceID from the history and
	// reports whether an entry was removed.
	PullDevice(ctx context.Context, id, deviceID string) (bool, error)
	// PruneDevices drops every device except token, but only while
	// activeToken still equals token. It reports whether the guard matched.
	PruneDevices(ctx context.Context, id, token string) (bool, error)
	// ClearActiveTokenIf empties activeToken only while it still equals token.
	ClearActiveTokenIf(ctx context.Context, id, token string) (bool, error)
	// SetAdmin changes the admin flag.
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	// Delete removes an account by id.
	Delete(ctx context.Context, id string) error
	// Watch delivers the current document and then every later revision
	// until ctx is cancelled.
	Watch(ctx context.Context, id string) (<-chan models.AccountEvent, error)
}
