package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	accountRepo "skylark/database/repository/account"
	"skylark/models"
)

func seedDevices(t *testing.T, repo *accountRepo.MemoryAccountRepo, n, active int) models.Account {
	t.Helper()
	acc := models.Account{Username: "pat"}
	now := time.Now().UTC()
	for i := 1; i <= n; i++ {
		acc.Devices = append(acc.Devices, models.Device{
			ID:        fmt.Sprintf("device-%d", i),
			Name:      fmt.Sprintf("browser %d", i),
			LoginTime: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	acc.ActiveToken = fmt.Sprintf("device-%d", active)
	if err := repo.Create(context.Background(), &acc); err != nil {
		t.Fatal(err)
	}
	return acc
}

func TestRevokeActiveDeviceClearsToken(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	acc := seedDevices(t, repo, 3, 1)
	svc := NewDeviceService(repo)

	if err := svc.RevokeDevice(ctx, acc.ID, "device-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stored, _ := repo.Peek(acc.ID)
	if stored.ActiveToken != "" {
		t.Fatalf("activeToken = %q, want empty", stored.ActiveToken)
	}
	if len(stored.Devices) != 2 {
		t.Fatalf("devices = %d", len(stored.Devices))
	}
}

func TestRevokeOtherDeviceKeepsToken(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	acc := seedDevices(t, repo, 3, 1)
	svc := NewDeviceService(repo)

	if err := svc.RevokeDevice(ctx, acc.ID, "device-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stored, _ := repo.Peek(acc.ID)
	if stored.ActiveToken != "device-1" {
		t.Fatalf("activeToken changed to %q", stored.ActiveToken)
	}
	if len(stored.Devices) != 2 {
		t.Fatalf("devices = %d", len(stored.Devices))
	}
	if _, ok := stored.DeviceByID("device-2"); ok {
		t.Fatalf("device-2 still present")
	}
	if err := svc.RevokeDevice(ctx, acc.ID, "device-2"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("want ErrDeviceNotFound, got %v", err)
	}
	if err := svc.RevokeDevice(ctx, "missing", "device-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRevokeAllOtherDevicesKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	acc := seedDevices(t, repo, 5, 3)
	svc := NewDeviceService(repo)

	if err := svc.RevokeAllOtherDevices(ctx, acc.ID); err != nil {
		t.Fatalf("revoke others: %v", err)
	}
	devices, active, err := svc.List(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].ID != "device-3" {
		t.Fatalf("devices = %+v", devices)
	}
	if active != "device-3" {
		t.Fatalf("activeToken = %q", active)
	}
}

// loginDuringPrune lands a fresh login just before each guarded prune.
type loginDuringPrune struct {
	*accountRepo.MemoryAccountRepo
	logins int
	tokens []string
}

func (r *loginDuringPrune) PruneDevices(ctx context.Context, id, token string) (bool, error) {
	if r.logins > 0 {
		r.logins--
		acc, _ := r.Peek(id)
		fresh := fmt.Sprintf("T-new-%d", len(r.tokens)+1)
		r.tokens = append(r.tokens, fresh)
		devices := append([]models.Device{{ID: fresh, Name: "late login", LoginTime: time.Now().UTC()}}, acc.Devices...)
		if err := r.SetSession(ctx, id, fresh, devices); err != nil {
			return false, err
		}
	}
	return r.MemoryAccountRepo.PruneDevices(ctx, id, token)
}

func TestRevokeAllOtherDevicesKeepsLoginThatRacedIt(t *testing.T) {
	ctx := context.Background()
	mem := accountRepo.NewMemoryAccountRepo()
	acc := seedDevices(t, mem, 3, 3)
	repo := &loginDuringPrune{MemoryAccountRepo: mem, logins: 1}
	svc := NewDeviceService(repo)

	if err := svc.RevokeAllOtherDevices(ctx, acc.ID); err != nil {
		t.Fatalf("revoke others: %v", err)
	}
	stored, _ := mem.Peek(acc.ID)
	if stored.ActiveToken != "T-new-1" {
		t.Fatalf("activeToken = %q", stored.ActiveToken)
	}
	if len(stored.Devices) != 1 || stored.Devices[0].ID != "T-new-1" {
		t.Fatalf("devices = %+v", stored.Devices)
	}

	if err := svc.RevokeDevice(ctx, acc.ID, "T-new-1"); err != nil {
		t.Fatalf("revoke live device: %v", err)
	}
	stored, _ = mem.Peek(acc.ID)
	if stored.ActiveToken != "" || len(stored.Devices) != 0 {
		t.Fatalf("after revoke: token=%q devices=%+v", stored.ActiveToken, stored.Devices)
	}
}

func TestRevokeAllOtherDevicesGivesUpUnderConstantLogins(t *testing.T) {
	ctx := context.Background()
	mem := accountRepo.NewMemoryAccountRepo()
	acc := seedDevices(t, mem, 2, 1)
	repo := &loginDuringPrune{MemoryAccountRepo: mem, logins: pruneAttempts}

	err := NewDeviceService(repo).RevokeAllOtherDevices(ctx, acc.ID)
	if !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("want ErrSessionChanged, got %v", err)
	}
	stored, _ := mem.Peek(acc.ID)
	if _, ok := stored.DeviceByID(stored.ActiveToken); !ok {
		t.Fatalf("live token %q lost its device entry", stored.ActiveToken)
	}
}

func TestRevokeLiveTokenWithoutDeviceEntry(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	acc := seedDevices(t, repo, 2, 1)
	if err := repo.SetSession(ctx, acc.ID, "ghost", acc.Devices); err != nil {
		t.Fatal(err)
	}
	svc := NewDeviceService(repo)

	if err := svc.RevokeDevice(ctx, acc.ID, "ghost"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stored, _ := repo.Peek(acc.ID)
	if stored.ActiveToken != "" {
		t.Fatalf("activeToken = %q, want empty", stored.ActiveToken)
	}
	if len(stored.Devices) != 2 {
		t.Fatalf("devices = %d", len(stored.Devices))
	}
	if err := svc.RevokeDevice(ctx, acc.ID, "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("want ErrDeviceNotFound, got %v", err)
	}
}

func TestRevokedClientIsForcedOut(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "quinn", "pw", false)
	c := newClient(t, repo, "tablet")
	acc, token, err := c.m.Login(ctx, "quinn", "pw")
	if err != nil {
		t.Fatal(err)
	}

	if err := NewDeviceService(repo).RevokeDevice(ctx, acc.ID, token); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "revoked logout", func() bool { return c.count(EventForcedLogout) == 1 })
	ev, _ := c.last(EventForcedLogout)
	if ev.Reason != ReasonRevoked {
		t.Fatalf("reason = %q", ev.Reason)
	}
	if c.snapshot(t) != nil {
		t.Fatalf("snapshot survived revocation")
	}
}
