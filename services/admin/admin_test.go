package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	accountRepo "skylark/database/repository/account"
	groupRepo "skylark/database/repository/group"
	messageRepo "skylark/database/repository/message"
	"skylark/models"
	"skylark/services/group"
	"skylark/services/session"
)

type fixture struct {
	svc      *DefaultAdminService
	accounts *accountRepo.MemoryAccountRepo
	groups   *group.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := accountRepo.NewMemoryAccountRepo()
	groups := group.NewService(groupRepo.NewMemoryGroupRepo(), messageRepo.NewMemoryMessageRepo(), nil)
	return &fixture{
		svc:      NewAdminService(accounts, groups, session.NewDeviceService(accounts), nil),
		accounts: accounts,
		groups:   groups,
	}
}

func (f *fixture) add(t *testing.T, username string, created time.Time) models.Account {
	t.Helper()
	acc := models.Account{Username: username, PasswordHash: "hash", CreatedAt: created}
	if err := f.accounts.Create(context.Background(), &acc); err != nil {
		t.Fatal(err)
	}
	return acc
}

func TestListAccountsSearchAndOrder(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f.add(t, "Alice", base)
	f.add(t, "malik", base.Add(time.Hour))
	f.add(t, "bob", base.Add(2*time.Hour))

	all, err := f.svc.ListAccounts(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Username != "bob" || all[2].Username != "Alice" {
		t.Fatalf("order = %v", all)
	}
	for _, a := range all {
		if a.PasswordHash != "" {
			t.Fatalf("password hash returned for %s", a.Username)
		}
	}

	hits, _ := f.svc.ListAccounts(context.Background(), "ALI")
	if len(hits) != 2 {
		t.Fatalf("search hits = %v", hits)
	}
}

func TestDeleteAccountProtectsAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := f.add(t, ProtectedUsername, time.Now())
	victim := f.add(t, "victor", time.Now())
	g, _ := f.groups.Create(ctx, victim.ID, "Victor's", "VIC")

	if err := f.svc.DeleteAccount(ctx, root.ID); !errors.Is(err, ErrProtectedAccount) {
		t.Fatalf("want ErrProtectedAccount, got %v", err)
	}
	if err := f.svc.SetAdmin(ctx, root.ID, false); !errors.Is(err, ErrProtectedAccount) {
		t.Fatalf("want ErrProtectedAccount on demote, got %v", err)
	}
	if err := f.svc.DeleteAccount(ctx, victim.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.accounts.Peek(victim.ID); ok {
		t.Fatalf("account still stored")
	}
	stored, _ := f.groups.Get(ctx, g.ID)
	if stored.HasMember(victim.ID) {
		t.Fatalf("deleted account still a member")
	}
	if err := f.svc.DeleteAccount(ctx, victim.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.add(t, "owner", time.Now())

	if err := f.svc.BootstrapAdmin(ctx, "ghost"); err != nil {
		t.Fatalf("missing account must not fail startup: %v", err)
	}
	if err := f.svc.BootstrapAdmin(ctx, "owner"); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.accounts.Peek(acc.ID)
	if !stored.IsAdmin {
		t.Fatalf("owner not promoted")
	}
}

func TestRevokeDeviceDelegates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := models.Account{
		Username:    "wes",
		ActiveToken: "t1",
		Devices:     []models.Device{{ID: "t1"}, {ID: "t0"}},
	}
	_ = f.accounts.Create(ctx, &acc)

	if err := f.svc.RevokeDevice(ctx, acc.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.accounts.Peek(acc.ID)
	if stored.ActiveToken != "" || len(stored.Devices) != 1 {
		t.Fatalf("after revoke: %+v", stored)
	}
}

func TestGroupModeration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g, _ := f.groups.Create(ctx, "u1", "Mods", "MOD")
	_, _ = f.groups.Join(ctx, "u2", "MOD")

	if err := f.svc.RemoveGroupMember(ctx, g.ID, "u2"); err != nil {
		t.Fatal(err)
	}
	groups, _ := f.svc.ListGroups(ctx)
	if len(groups) != 1 || len(groups[0].Members) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	if err := f.svc.DeleteGroup(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if groups, _ := f.svc.ListGroups(ctx); len(groups) != 0 {
		t.Fatalf("group survived delete")
	}
}
