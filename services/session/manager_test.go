package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	accountRepo "skylark/database/repository/account"
	"skylark/localstore"
	"skylark/models"
	"skylark/utils"

	"golang.org/x/crypto/bcrypt"
)

// client bundles a Manager with its storage and a recorder of its events.
type client struct {
	m       *Manager
	storage *localstore.SessionStorage

	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func newClient(t *testing.T, repo accountRepo.AccountRepository, name string) *client {
	t.Helper()
	return newClientWithStore(t, repo, name, localstore.NewMemoryStore())
}

func newClientWithStore(t *testing.T, repo accountRepo.AccountRepository, name string, store localstore.Store) *client {
	t.Helper()
	storage := localstore.NewSessionStorage(store)
	c := &client{
		storage: storage,
		m: NewManager(repo, storage, name, Options{
			BcryptCost: bcrypt.MinCost,
			WatchRetry: 10 * time.Millisecond,
		}),
		done: make(chan struct{}),
	}
	c.m.Start()
	go func() {
		defer close(c.done)
		for ev := range c.m.Events() {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		c.m.Close()
		<-c.done
	})
	return c
}

func (c *client) count(kind EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (c *client) last(kind EventKind) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Kind == kind {
			return c.events[i], true
		}
	}
	return Event{}, false
}

func (c *client) snapshot(t *testing.T) *models.SessionSnapshot {
	t.Helper()
	snap, err := c.storage.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return snap
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seedAccount(t *testing.T, repo *accountRepo.MemoryAccountRepo, username, password string, admin bool) models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	acc := models.Account{Username: username, PasswordHash: string(hash), IsAdmin: admin}
	if err := repo.Create(context.Background(), &acc); err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return acc
}

func TestLoginWritesTokenAndDevice(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seeded := seedAccount(t, repo, "carol", "pw", false)
	c := newClient(t, repo, "Firefox on Linux")

	acc, token, err := c.m.Login(ctx, "carol", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	stored, _ := repo.Peek(seeded.ID)
	if stored.ActiveToken != token || acc.ActiveToken != token {
		t.Fatalf("activeToken = %q, returned %q", stored.ActiveToken, token)
	}
	if len(stored.Devices) != 1 || stored.Devices[0].ID != token {
		t.Fatalf("devices = %+v", stored.Devices)
	}
	if stored.Devices[0].Name != "Firefox on Linux" {
		t.Fatalf("device name = %q", stored.Devices[0].Name)
	}
	if acc.PasswordHash != "" {
		t.Fatalf("password hash leaked to caller")
	}
	snap := c.snapshot(t)
	if snap == nil || snap.Token != token || snap.Account.ID != seeded.ID {
		t.Fatalf("snapshot = %+v", snap)
	}
	if v := c.m.Current(); !v.Authenticated() || v.Token != token || v.Impersonating {
		t.Fatalf("view = %+v", v)
	}
	waitFor(t, "logged in event", func() bool { return c.count(EventLoggedIn) == 1 })
}

func TestLoginDeviceHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seeded := seedAccount(t, repo, "dave", "pw", false)
	c := newClient(t, repo, "cli")

	var last string
	for i := 0; i < 7; i++ {
		_, tok, err := c.m.Login(ctx, "dave", "pw")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		last = tok
	}
	stored, _ := repo.Peek(seeded.ID)
	if len(stored.Devices) != 5 {
		t.Fatalf("devices = %d, want 5", len(stored.Devices))
	}
	if stored.Devices[0].ID != last {
		t.Fatalf("most recent device not first")
	}
	// Relogging on the same client never trips its own observation.
	time.Sleep(50 * time.Millisecond)
	if c.count(EventForcedLogout) != 0 || !c.m.Current().Authenticated() {
		t.Fatalf("relogin invalidated own session")
	}
}

func TestLoginErrors(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "erin", "Secret", false)
	c := newClient(t, repo, "cli")

	if _, _, err := c.m.Login(ctx, "nobody", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, _, err := c.m.Login(ctx, "erin", "secret"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("want ErrBadCredentials for case mismatch, got %v", err)
	}
	if _, _, err := c.m.Login(ctx, "Erin", "Secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("username lookup must be case-sensitive, got %v", err)
	}
	if c.snapshot(t) != nil {
		t.Fatalf("failed login stored a snapshot")
	}
}

func TestLoginStoreErrorCommitsNothing(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seeded := seedAccount(t, repo, "frank", "pw", false)
	c := newClient(t, repo, "cli")

	repo.FailWith(fmt.Errorf("connection reset"))
	_, _, err := c.m.Login(ctx, "frank", "pw")
	if !utils.IsStoreError(err) {
		t.Fatalf("want StoreError, got %v", err)
	}
	repo.FailWith(nil)

	stored, _ := repo.Peek(seeded.ID)
	if stored.ActiveToken != "" || len(stored.Devices) != 0 {
		t.Fatalf("remote state changed: %+v", stored)
	}
	if c.snapshot(t) != nil {
		t.Fatalf("local snapshot written after store error")
	}
}

func TestRegisterTwiceReturnsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	c := newClient(t, repo, "cli")

	acc, token, err := c.m.Register(ctx, "bob", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acc.IsAdmin || acc.ActiveToken != token || len(acc.Devices) != 1 {
		t.Fatalf("unexpected account %+v", acc)
	}
	stored, _ := repo.Peek(acc.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == "pw" {
		t.Fatalf("password not hashed")
	}

	other := newClient(t, repo, "cli2")
	if _, _, err := other.m.Register(ctx, "bob", "pw2"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if repo.Count() != 1 {
		t.Fatalf("accounts = %d, want 1", repo.Count())
	}
	if _, _, err := other.m.Register(ctx, "", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestSecondLoginForcesFirstClientOutOnce(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	first := newClient(t, repo, "laptop")
	second := newClient(t, repo, "phone")

	alice, t1, err := first.m.Register(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(alice.Devices) != 1 {
		t.Fatalf("devices after register = %d", len(alice.Devices))
	}

	_, t2, err := second.m.Login(ctx, "alice", "p1")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	stored, _ := repo.Peek(alice.ID)
	if stored.ActiveToken != t2 || len(stored.Devices) != 2 || stored.Devices[0].ID != t2 {
		t.Fatalf("remote after second login: %+v", stored)
	}
	if t1 == t2 {
		t.Fatalf("tokens must differ")
	}

	waitFor(t, "forced logout", func() bool { return first.count(EventForcedLogout) == 1 })
	ev, _ := first.last(EventForcedLogout)
	if ev.Reason != ReasonSuperseded {
		t.Fatalf("reason = %q", ev.Reason)
	}
	if first.snapshot(t) != nil || first.m.Current().Authenticated() {
		t.Fatalf("first client still holds a session")
	}

	// Later revisions must not repopulate or re-invalidate.
	if _, _, err := second.m.Login(ctx, "alice", "p1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if first.count(EventForcedLogout) != 1 || first.snapshot(t) != nil {
		t.Fatalf("forced logout repeated or snapshot restored")
	}
	if second.count(EventForcedLogout) != 0 {
		t.Fatalf("second client was logged out")
	}
}

func TestOnSessionUpdateReasons(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		latest func(a models.Account) *models.Account
		reason Reason
	}{
		{"token replaced", func(a models.Account) *models.Account { a.ActiveToken = "other"; return &a }, ReasonSuperseded},
		{"token cleared", func(a models.Account) *models.Account { a.ActiveToken = ""; return &a }, ReasonRevoked},
		{"account deleted", func(models.Account) *models.Account { return nil }, ReasonRevoked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := accountRepo.NewMemoryAccountRepo()
			seedAccount(t, repo, "gina", "pw", false)
			c := newClient(t, repo, "cli")
			acc, _, err := c.m.Login(ctx, "gina", "pw")
			if err != nil {
				t.Fatal(err)
			}

			err = c.m.OnSessionUpdate(ctx, tc.latest(*acc))
			var fl *ForcedLogoutError
			if !errors.As(err, &fl) || fl.Reason != tc.reason {
				t.Fatalf("want forced logout %q, got %v", tc.reason, err)
			}
			if c.snapshot(t) != nil {
				t.Fatalf("snapshot not cleared")
			}
			// Clearing again is a no-op.
			if err := c.m.OnSessionUpdate(ctx, tc.latest(*acc)); err != nil {
				t.Fatalf("second update after logout: %v", err)
			}
			if err := c.m.Logout(ctx); err != nil {
				t.Fatalf("logout after forced logout: %v", err)
			}
		})
	}
}

func TestOnSessionUpdateMergesMatchingToken(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seeded := seedAccount(t, repo, "hank", "pw", false)
	c := newClient(t, repo, "cli")
	if _, _, err := c.m.Login(ctx, "hank", "pw"); err != nil {
		t.Fatal(err)
	}

	if err := repo.SetAdmin(ctx, seeded.ID, true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "admin flag merged", func() bool {
		v := c.m.Current()
		return v.Account != nil && v.Account.IsAdmin
	})
	snap := c.snapshot(t)
	if snap == nil || !snap.Account.IsAdmin {
		t.Fatalf("merged account not persisted: %+v", snap)
	}
}

func TestLogoutIsIdempotentAndKeepsRemoteToken(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seeded := seedAccount(t, repo, "ivy", "pw", false)
	c := newClient(t, repo, "cli")
	_, token, err := c.m.Login(ctx, "ivy", "pw")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := c.m.Logout(ctx); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
		if c.snapshot(t) != nil || c.m.Current().Authenticated() {
			t.Fatalf("logout %d left a session", i)
		}
	}
	stored, _ := repo.Peek(seeded.ID)
	if stored.ActiveToken != token {
		t.Fatalf("logout changed remote activeToken to %q", stored.ActiveToken)
	}
	waitFor(t, "one logout event", func() bool { return c.count(EventLoggedOut) == 1 })
}

func TestInitRestoresAndValidatesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "jack", "pw", false)
	store := localstore.NewMemoryStore()

	first := newClientWithStore(t, repo, "cli", store)
	_, token, err := first.m.Login(ctx, "jack", "pw")
	if err != nil {
		t.Fatal(err)
	}
	first.m.Close()

	restored := newClientWithStore(t, repo, "cli", store)
	if err := restored.m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if v := restored.m.Current(); !v.Authenticated() || v.Token != token {
		t.Fatalf("restored view = %+v", v)
	}

	// Another device logs in while this one is restored.
	other := newClient(t, repo, "other")
	if _, _, err := other.m.Login(ctx, "jack", "pw"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "restored session invalidated", func() bool {
		return restored.count(EventForcedLogout) == 1
	})
	if snap, _ := localstore.NewSessionStorage(store).LoadSnapshot(ctx); snap != nil {
		t.Fatalf("stale snapshot survived")
	}
}

func TestInitWithoutSnapshotIsUnauthenticated(t *testing.T) {
	c := newClient(t, accountRepo.NewMemoryAccountRepo(), "cli")
	if err := c.m.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.m.Current().Authenticated() {
		t.Fatalf("expected unauthenticated view")
	}
}

func TestImpersonationBypassesForcedLogout(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "root", "pw", true)
	target := seedAccount(t, repo, "kim", "pw", false)

	kimClient := newClient(t, repo, "kim-phone")
	_, kimToken, err := kimClient.m.Login(ctx, "kim", "pw")
	if err != nil {
		t.Fatal(err)
	}

	adminClient := newClient(t, repo, "admin-desk")
	admin, adminToken, err := adminClient.m.Login(ctx, "root", "pw")
	if err != nil {
		t.Fatal(err)
	}

	impersonated, err := adminClient.m.BeginImpersonation(ctx, target.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if impersonated.ID != target.ID {
		t.Fatalf("impersonating %s", impersonated.ID)
	}
	snap := adminClient.snapshot(t)
	if snap == nil || snap.Account.ID != target.ID || snap.Token != kimToken {
		t.Fatalf("snapshot during impersonation = %+v", snap)
	}
	if !adminClient.m.Current().Impersonating {
		t.Fatalf("view not flagged as impersonating")
	}
	waitFor(t, "reload", func() bool { return adminClient.count(EventReload) == 1 })

	for i := 0; i < 5; i++ {
		bogus := target
		bogus.ActiveToken = fmt.Sprintf("mismatch-%d", i)
		if err := adminClient.m.OnSessionUpdate(ctx, &bogus); err != nil {
			t.Fatalf("update %d while impersonating: %v", i, err)
		}
	}
	// A real login elsewhere is also tolerated.
	if _, _, err := kimClient.m.Login(ctx, "kim", "pw"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if adminClient.count(EventForcedLogout) != 0 || adminClient.snapshot(t) == nil {
		t.Fatalf("impersonation session was invalidated")
	}
	if kimClient.count(EventForcedLogout) != 0 {
		t.Fatalf("impersonation disturbed the target's own session")
	}

	if err := adminClient.m.EndImpersonation(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	snap = adminClient.snapshot(t)
	if snap == nil || snap.Account.ID != admin.ID || snap.Token != adminToken {
		t.Fatalf("restored snapshot = %+v", snap)
	}
	if b, _ := adminClient.storage.LoadBackup(ctx); b != nil {
		t.Fatalf("backup not removed")
	}
	if v := adminClient.m.Current(); v.Impersonating || v.Account.ID != admin.ID {
		t.Fatalf("view after end = %+v", v)
	}

	// Back on the admin's own session the check applies again.
	if err := adminClient.m.EndImpersonation(ctx); err != nil {
		t.Fatalf("end without backup must be a no-op: %v", err)
	}
	if _, _, err := newClient(t, repo, "elsewhere").m.Login(ctx, "root", "pw"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "admin superseded", func() bool { return adminClient.count(EventForcedLogout) == 1 })
}

func TestImpersonationUsesSentinelWithoutActiveToken(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "root", "pw", true)
	target := seedAccount(t, repo, "lou", "pw", false)
	c := newClient(t, repo, "cli")
	if _, _, err := c.m.Login(ctx, "root", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.m.BeginImpersonation(ctx, target.ID); err != nil {
		t.Fatal(err)
	}
	if snap := c.snapshot(t); snap == nil || snap.Token != ImpersonatedToken {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := c.m.BeginImpersonation(ctx, target.ID); !errors.Is(err, ErrAlreadyImpersonating) {
		t.Fatalf("want ErrAlreadyImpersonating, got %v", err)
	}
}

func TestImpersonationRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "mia", "pw", false)
	target := seedAccount(t, repo, "ned", "pw", false)
	c := newClient(t, repo, "cli")

	if _, err := c.m.BeginImpersonation(ctx, target.ID); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}
	if _, _, err := c.m.Login(ctx, "mia", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.m.BeginImpersonation(ctx, target.ID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("want ErrNotAdmin, got %v", err)
	}
	if b, _ := c.storage.LoadBackup(ctx); b != nil {
		t.Fatalf("backup written for non-admin")
	}
}

func TestLogoutClearsImpersonationBackup(t *testing.T) {
	ctx := context.Background()
	repo := accountRepo.NewMemoryAccountRepo()
	seedAccount(t, repo, "root", "pw", true)
	target := seedAccount(t, repo, "ola", "pw", false)
	c := newClient(t, repo, "cli")
	if _, _, err := c.m.Login(ctx, "root", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.m.BeginImpersonation(ctx, target.ID); err != nil {
		t.Fatal(err)
	}
	if err := c.m.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if b, _ := c.storage.LoadBackup(ctx); b != nil {
		t.Fatalf("backup survived logout")
	}
}

func TestClosedManagerRejectsOperations(t *testing.T) {
	c := newClient(t, accountRepo.NewMemoryAccountRepo(), "cli")
	c.m.Close()
	if _, _, err := c.m.Login(context.Background(), "x", "y"); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
