package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	accountRepo "skylark/database/repository/account"
	"skylark/localstore"
	"skylark/models"
	"skylark/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ImpersonatedToken stands in for the target's token when it has no
// active session of its own.
const ImpersonatedToken = "impersonated"

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	MaxDevices int
	BcryptCost int
	Now        func() time.Time
	NewToken   func() string
	Logger     *zap.Logger
	// WatchRetry is the first delay before resubscribing after the account
	// stream ends unexpectedly.
	WatchRetry time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxDevices <= 0 {
		o.MaxDevices = 5
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = bcrypt.DefaultCost
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewToken == nil {
		o.NewToken = func() string { return uuid.New().String() }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.WatchRetry <= 0 {
		o.WatchRetry = time.Second
	}
}

// Manager runs the single-active-session protocol for one client. Every
// operation that touches the local snapshot runs on one goroutine, so a
// remote update can never interleave with a login, logout or impersonation
// toggle.
type Manager struct {
	repo       accountRepo.AccountRepository
	storage    *localstore.SessionStorage
	descriptor string
	opts       Options
	log        *zap.Logger

	ops       chan func()
	events    chan Event
	done      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	// Owned by the loop goroutine.
	account     *models.Account
	token       string
	gen         uint64
	cancelWatch context.CancelFunc

	mu   sync.RWMutex
	view View
}

// NewManager builds a Manager for the client described by descriptor.
func NewManager(repo accountRepo.AccountRepository, storage *localstore.SessionStorage, descriptor string, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		repo:       repo,
		storage:    storage,
		descriptor: descriptor,
		opts:       opts,
		log:        opts.Logger,
		ops:        make(chan func()),
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start launches the event loop. It is safe to call more than once.
func (m *Manager) Start() {
	m.startOnce.Do(func() { go m.run() })
}

// Close stops observation and the loop, then closes Events.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.Start()
	<-m.stopped
}

// Events delivers state changes. The channel is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Current returns a copy of the session state.
func (m *Manager) Current() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v := m.view
	if v.Account != nil {
		a := v.Account.Clone()
		v.Account = &a
	}
	return v
}

func (m *Manager) run() {
	defer close(m.stopped)
	defer close(m.events)
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.done:
			m.stopWatch()
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (m *Manager) do(ctx context.Context, fn func() error) error {
	m.Start()
	errc := make(chan error, 1)
	op := func() { errc <- fn() }
	select {
	case m.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
	return <-errc
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) publish(impersonating bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		m.view = View{}
		return
	}
	a := m.account.Clone()
	m.view = View{Account: &a, Token: m.token, Impersonating: impersonating}
}

// setSession replaces the in-memory session and restarts observation.
func (m *Manager) setSession(account models.Account, token string, impersonating bool) {
	account.PasswordHash = ""
	m.account = &account
	m.token = token
	m.publish(impersonating)
	m.startWatch(account.ID)
}

func (m *Manager) clearSession() {
	m.stopWatch()
	m.account = nil
	m.token = ""
	m.publish(false)
}

// Init restores the stored session, if any, and begins observing it.
func (m *Manager) Init(ctx context.Context) error {
	return m.do(ctx, func() error {
		snap, err := m.storage.LoadSnapshot(ctx)
		if err != nil {
			return utils.NewStoreError("restore session", err)
		}
		if snap == nil {
			m.clearSession()
			return nil
		}
		backup, err := m.storage.LoadBackup(ctx)
		if err != nil {
			return utils.NewStoreError("restore session", err)
		}
		m.setSession(snap.Account, snap.Token, backup != nil)
		m.log.Debug("Session restored",
			zap.String("accountId", snap.Account.ID),
			zap.Bool("impersonating", backup != nil))
		return nil
	})
}

// Login verifies credentials and makes this client the account's only
// valid session.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Account, string, error) {
	var (
		out   *models.Account
		token string
	)
	err := m.do(ctx, func() error {
		acc, err := m.repo.GetByUsername(ctx, username)
		if err != nil {
			return utils.NewStoreError("find account", err)
		}
		if acc == nil {
			return ErrNotFound
		}
		if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
			return ErrBadCredentials
		}

		token = m.opts.NewToken()
		devices := models.PrependDevice(acc.Devices, m.newDevice(token), m.opts.MaxDevices)
		if err := m.repo.SetSession(ctx, acc.ID, token, devices); err != nil {
			return utils.NewStoreError("start session", err)
		}
		acc.ActiveToken = token
		acc.Devices = devices

		if err := m.establish(ctx, *acc, token); err != nil {
			return err
		}
		out = m.accountCopy()
		m.log.Info("Login successful", zap.String("accountId", acc.ID), zap.String("device", m.descriptor))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, token, nil
}

// Register creates an account and logs this client into it.
func (m *Manager) Register(ctx context.Context, username, password string) (*models.Account, string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, "", ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.opts.BcryptCost)
	if err != nil {
		return nil, "", err
	}

	var (
		out   *models.Account
		token string
	)
	err = m.do(ctx, func() error {
		existing, err := m.repo.GetByUsername(ctx, username)
		if err != nil {
			return utils.NewStoreError("check username", err)
		}
		if existing != nil {
			return ErrAlreadyExists
		}

		token = m.opts.NewToken()
		now := m.opts.Now().UTC()
		acc := models.Account{
			ID:           uuid.New().String(),
			Username:     username,
			PasswordHash: string(hash),
			IsAdmin:      false,
			ActiveToken:  token,
			Devices:      []models.Device{m.newDevice(token)},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := m.repo.Create(ctx, &acc); err != nil {
			if errors.Is(err, accountRepo.ErrDuplicateUsername) {
				return ErrAlreadyExists
			}
			return utils.NewStoreError("create account", err)
		}

		if err := m.establish(ctx, acc, token); err != nil {
			return err
		}
		out = m.accountCopy()
		m.log.Info("Account registered", zap.String("accountId", acc.ID), zap.String("username", username))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return out, token, nil
}

func (m *Manager) newDevice(token string) models.Device {
	return models.Device{ID: token, Name: m.descriptor, LoginTime: m.opts.Now().UTC()}
}

func (m *Manager) accountCopy() *models.Account {
	if m.account == nil {
		return nil
	}
	a := m.account.Clone()
	return &a
}

// establish persists a fresh session locally and switches observation to it.
func (m *Manager) establish(ctx context.Context, acc models.Account, token string) error {
	acc.PasswordHash = ""
	if err := m.storage.ClearBackup(ctx); err != nil {
		return utils.NewStoreError("save session", err)
	}
	if err := m.storage.SaveSnapshot(ctx, models.SessionSnapshot{Account: acc, Token: token}); err != nil {
		return utils.NewStoreError("save session", err)
	}
	m.setSession(acc, token, false)
	m.emit(Event{Kind: EventLoggedIn, Account: m.accountCopy()})
	return nil
}

// Logout discards the local session. The remote activeToken is left as is.
func (m *Manager) Logout(ctx context.Context) error {
	return m.do(ctx, func() error {
		wasAuthenticated := m.account != nil
		errSnap := m.storage.ClearSnapshot(ctx)
		errBackup := m.storage.ClearBackup(ctx)
		m.clearSession()
		if wasAuthenticated {
			m.emit(Event{Kind: EventLoggedOut})
		}
		if errSnap != nil {
			return utils.NewStoreError("logout", errSnap)
		}
		return utils.NewStoreError("logout", errBackup)
	})
}

// OnSessionUpdate applies a remote revision of the current account. A nil
// latest means the account no longer exists. It returns a
// *ForcedLogoutError when the update invalidated this client.
func (m *Manager) OnSessionUpdate(ctx context.Context, latest *models.Account) error {
	return m.do(ctx, func() error {
		return m.applyUpdate(ctx, latest)
	})
}

func (m *Manager) applyUpdate(ctx context.Context, latest *models.Account) error {
	if m.account == nil {
		return nil
	}
	if latest != nil && latest.ID != m.account.ID {
		return nil
	}

	backup, err := m.storage.LoadBackup(ctx)
	if err != nil {
		m.log.Warn("Failed to read impersonation backup", zap.Error(err))
	}
	if backup != nil {
		if latest != nil {
			m.merge(ctx, *latest, true)
		}
		return nil
	}

	token, err := m.storage.Token(ctx)
	if err != nil {
		m.log.Warn("Failed to read local token", zap.Error(err))
		token = m.token
	}
	if token != "" {
		var reason Reason
		switch {
		case latest == nil, latest.ActiveToken == "":
			reason = ReasonRevoked
		case latest.ActiveToken != token:
			reason = ReasonSuperseded
		}
		if reason != "" {
			m.forceLogout(ctx, reason)
			return &ForcedLogoutError{Reason: reason}
		}
	}
	if latest != nil {
		m.merge(ctx, *latest, false)
	}
	return nil
}

func (m *Manager) merge(ctx context.Context, latest models.Account, impersonating bool) {
	latest.PasswordHash = ""
	if err := m.storage.SaveAccount(ctx, latest); err != nil {
		m.log.Warn("Failed to persist account update", zap.String("accountId", latest.ID), zap.Error(err))
	}
	m.account = &latest
	m.publish(impersonating)
	m.emit(Event{Kind: EventAccountUpdated, Account: m.accountCopy()})
}

// forceLogout clears every trace of the session before announcing it.
func (m *Manager) forceLogout(ctx context.Context, reason Reason) {
	accountID := m.account.ID
	if err := m.storage.ClearSnapshot(ctx); err != nil {
		m.log.Error("Failed to clear session on forced logout", zap.Error(err))
	}
	if err := m.storage.ClearBackup(ctx); err != nil {
		m.log.Error("Failed to clear impersonation backup on forced logout", zap.Error(err))
	}
	m.clearSession()
	m.log.Info("Forced logout", zap.String("accountId", accountID), zap.String("reason", string(reason)))
	m.emit(Event{Kind: EventForcedLogout, Reason: reason})
}

// BeginImpersonation lets an administrator drive targetID's session
// without invalidating it.
func (m *Manager) BeginImpersonation(ctx context.Context, targetID string) (*models.Account, error) {
	var out *models.Account
	err := m.do(ctx, func() error {
		if m.account == nil {
			return ErrNotLoggedIn
		}
		if !m.account.IsAdmin {
			return ErrNotAdmin
		}
		backup, err := m.storage.LoadBackup(ctx)
		if err != nil {
			return utils.NewStoreError("begin impersonation", err)
		}
		if backup != nil {
			return ErrAlreadyImpersonating
		}

		target, err := m.repo.GetByID(ctx, targetID)
		if err != nil {
			return utils.NewStoreError("load account", err)
		}
		if target == nil {
			return ErrNotFound
		}
		target.PasswordHash = ""

		admin := models.ImpersonationBackup{User: *m.accountCopy(), Token: m.token}
		if err := m.storage.SaveBackup(ctx, admin); err != nil {
			return utils.NewStoreError("begin impersonation", err)
		}
		token := target.ActiveToken
		if token == "" {
			token = ImpersonatedToken
		}
		if err := m.storage.SaveSnapshot(ctx, models.SessionSnapshot{Account: *target, Token: token}); err != nil {
			_ = m.storage.ClearBackup(ctx)
			return utils.NewStoreError("begin impersonation", err)
		}

		m.log.Info("Impersonation started",
			zap.String("adminId", admin.User.ID),
			zap.String("targetId", target.ID))
		m.reload(*target, token, true)
		out = m.accountCopy()
		return nil
	})
	return out, err
}

// EndImpersonation restores the administrator's own session. Without a
// backup it does nothing.
func (m *Manager) EndImpersonation(ctx context.Context) error {
	return m.do(ctx, func() error {
		backup, err := m.storage.LoadBackup(ctx)
		if err != nil {
			return utils.NewStoreError("end impersonation", err)
		}
		if backup == nil {
			return nil
		}
		snap := models.SessionSnapshot{Account: backup.User, Token: backup.Token}
		if err := m.storage.SaveSnapshot(ctx, snap); err != nil {
			return utils.NewStoreError("end impersonation", err)
		}
		if err := m.storage.ClearBackup(ctx); err != nil {
			return utils.NewStoreError("end impersonation", err)
		}
		m.log.Info("Impersonation ended", zap.String("adminId", backup.User.ID))
		m.reload(backup.User, backup.Token, false)
		return nil
	})
}

// reload re-establishes observation against the stored identity.
func (m *Manager) reload(account models.Account, token string, impersonating bool) {
	m.setSession(account, token, impersonating)
	m.emit(Event{Kind: EventReload, Account: m.accountCopy()})
}

func (m *Manager) stopWatch() {
	if m.cancelWatch != nil {
		m.cancelWatch()
		m.cancelWatch = nil
	}
}

// startWatch replaces the current subscription. Callbacks carry the
// generation they were started with and are dropped once it is stale.
func (m *Manager) startWatch(accountID string) {
	m.stopWatch()
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelWatch = cancel
	go m.observe(ctx, gen, accountID)
}

func (m *Manager) observe(ctx context.Context, gen uint64, accountID string) {
	delay := m.opts.WatchRetry
	for {
		events, err := m.repo.Watch(ctx, accountID)
		if err != nil {
			m.log.Warn("Failed to observe account", zap.String("accountId", accountID), zap.Error(err))
		} else {
			for ev := range events {
				if ev.Err != nil {
					m.log.Warn("Account subscription error", zap.String("accountId", accountID), zap.Error(ev.Err))
					continue
				}
				delay = m.opts.WatchRetry
				var latest *models.Account
				if !ev.Deleted {
					a := ev.Account
					latest = &a
				}
				if !m.deliver(ctx, gen, latest) {
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

// deliver hands a revision to the loop. It returns false once the
// subscription is cancelled.
func (m *Manager) deliver(ctx context.Context, gen uint64, latest *models.Account) bool {
	op := func() {
		if gen != m.gen || ctx.Err() != nil {
			return
		}
		_ = m.applyUpdate(context.Background(), latest)
	}
	select {
	case m.ops <- op:
		return true
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	}
}
