package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skylark/models"
)

// Keys used by SessionStorage.
const (
	KeyUser        = "skylark_user"
	KeyToken       = "skylark_token"
	KeyAdminBackup = "skylark_admin_backup"
	KeyLastSeen    = "skylark_last_seen"
	KeyLastOffline = "skylark_last_offline"
)

// SessionStorage is the typed view over a client's Store.
type SessionStorage struct {
	store Store
}

func NewSessionStorage(store Store) *SessionStorage {
	return &SessionStorage{store: store}
}

func (s *SessionStorage) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrMissing) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		// A corrupt entry reads as absent; the next write replaces it.
		return false, nil
	}
	return true, nil
}

func (s *SessionStorage) setJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot returns the stored session, or nil when either half is missing.
func (s *SessionStorage) LoadSnapshot(ctx context.Context) (*models.SessionSnapshot, error) {
	var account models.Account
	ok, err := s.getJSON(ctx, KeyUser, &account)
	if err != nil || !ok {
		return nil, err
	}
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	return &models.SessionSnapshot{Account: account, Token: token}, nil
}

// SaveSnapshot writes the account blob and the token.
func (s *SessionStorage) SaveSnapshot(ctx context.Context, snap models.SessionSnapshot) error {
	if err := s.setJSON(ctx, KeyUser, snap.Account); err != nil {
		return err
	}
	if err := s.store.Set(ctx, KeyToken, snap.Token); err != nil {
		return fmt.Errorf("failed to write %s: %w", KeyToken, err)
	}
	return nil
}

// SaveAccount replaces the account blob and keeps the token.
func (s *SessionStorage) SaveAccount(ctx context.Context, account models.Account) error {
	return s.setJSON(ctx, KeyUser, account)
}

func (s *SessionStorage) ClearSnapshot(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyUser, KeyToken); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Token returns the stored token, "" when absent.
func (s *SessionStorage) Token(ctx context.Context) (string, error) {
	token, err := s.store.Get(ctx, KeyToken)
	if errors.Is(err, ErrMissing) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", KeyToken, err)
	}
	return token, nil
}

func (s *SessionStorage) LoadBackup(ctx context.Context) (*models.ImpersonationBackup, error) {
	var backup models.ImpersonationBackup
	ok, err := s.getJSON(ctx, KeyAdminBackup, &backup)
	if err != nil || !ok {
		return nil, err
	}
	return &backup, nil
}

func (s *SessionStorage) SaveBackup(ctx context.Context, backup models.ImpersonationBackup) error {
	return s.setJSON(ctx, KeyAdminBackup, backup)
}

func (s *SessionStorage) ClearBackup(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyAdminBackup); err != nil {
		return fmt.Errorf("failed to clear impersonation backup: %w", err)
	}
	return nil
}

// LastSeen returns the per-group watermarks; never nil.
func (s *SessionStorage) LastSeen(ctx context.Context) (map[string]time.Time, error) {
	seen := map[string]time.Time{}
	if _, err := s.getJSON(ctx, KeyLastSeen, &seen); err != nil {
		return map[string]time.Time{}, err
	}
	if seen == nil {
		seen = map[string]time.Time{}
	}
	return seen, nil
}

func (s *SessionStorage) SaveLastSeen(ctx context.Context, seen map[string]time.Time) error {
	return s.setJSON(ctx, KeyLastSeen, seen)
}

// LastOffline returns the stored offline time, zero when absent.
func (s *SessionStorage) LastOffline(ctx context.Context) (time.Time, error) {
	raw, err := s.store.Get(ctx, KeyLastOffline)
	if errors.Is(err, ErrMissing) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read %s: %w", KeyLastOffline, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *SessionStorage) SaveLastOffline(ctx context.Context, t time.Time) error {
	if err := s.store.Set(ctx, KeyLastOffline, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write %s: %w", KeyLastOffline, err)
	}
	return nil
}

func (s *SessionStorage) ClearLastOffline(ctx context.Context) error {
	if err := s.store.Delete(ctx, KeyLastOffline); err != nil {
		return fmt.Errorf("failed to clear %s: %w", KeyLastOffline, err)
	}
	return nil
}
