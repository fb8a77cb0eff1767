package accountRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"skylark/models"

	"github.com/google/uuid"
)

// MemoryAccountRepo is an in-process AccountRepository with live Watch
// support. It backs the service and handler tests.
type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	watchers map[string]map[*memWatcher]struct{}
	fail     error
}

func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[string]models.Account),
		watchers: make(map[string]map[*memWatcher]struct{}),
	}
}

// FailWith makes every call return err until called again with nil.
func (r *MemoryAccountRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Count returns the number of stored accounts.
func (r *MemoryAccountRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// Peek returns the stored document, including the password hash.
func (r *MemoryAccountRepo) Peek(id string) (models.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	return a.Clone(), ok
}

func (r *MemoryAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	a = a.Clone()
	return &a, nil
}

func (r *MemoryAccountRepo) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, a := range r.accounts {
		if a.Username == username {
			a = a.Clone()
			return &a, nil
		}
	}
	return nil, nil
}

func (r *MemoryAccountRepo) GetAll(_ context.Context) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	out := make([]models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		a = a.Clone()
		a.PasswordHash = ""
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryAccountRepo) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, a := range r.accounts {
		if a.Username == account.Username {
			return ErrDuplicateUsername
		}
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.Devices == nil {
		account.Devices = []models.Device{}
	}
	r.accounts[account.ID] = account.Clone()
	r.notifyLocked(account.ID)
	return nil
}

func (r *MemoryAccountRepo) update(id string, fn func(a *models.Account) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return false, r.fail
	}
	a, ok := r.accounts[id]
	if !ok {
		return false, ErrNotFound
	}
	a = a.Clone()
	if !fn(&a) {
		return false, nil
	}
	a.UpdatedAt = time.Now().UTC()
	r.accounts[id] = a
	r.notifyLocked(id)
	return true, nil
}

func (r *MemoryAccountRepo) SetSession(_ context.Context, id, token string, devices []models.Device) error {
	_, err := r.update(id, func(a *models.Account) bool {
		a.ActiveToken = token
		a.Devices = append([]models.Device{}, devices...)
		return true
	})
	return err
}

func (r *MemoryAccountRepo) PullDevice(_ context.Context, id, deviceID string) (bool, error) {
	changed, err := r.update(id, func(a *models.Account) bool {
		kept := []models.Device{}
		for _, d := range a.Devices {
			if d.ID != deviceID {
				kept = append(kept, d)
			}
		}
		if len(kept) == len(a.Devices) {
			return false
		}
		a.Devices = kept
		return true
	})
	if err == ErrNotFound {
		return false, nil
	}
	return changed, err
}

func (r *MemoryAccountRepo) PruneDevices(_ context.Context, id, token string) (bool, error) {
	matched, err := r.update(id, func(a *models.Account) bool {
		if a.ActiveToken != token {
			return false
		}
		kept := []models.Device{}
		for _, d := range a.Devices {
			if d.ID == token {
				kept = append(kept, d)
			}
		}
		a.Devices = kept
		return true
	})
	if err == ErrNotFound {
		return false, nil
	}
	return matched, err
}

func (r *MemoryAccountRepo) ClearActiveTokenIf(_ context.Context, id, token string) (bool, error) {
	changed, err := r.update(id, func(a *models.Account) bool {
		if a.ActiveToken != token {
			return false
		}
		a.ActiveToken = ""
		return true
	})
	if err == ErrNotFound {
		return false, nil
	}
	return changed, err
}

func (r *MemoryAccountRepo) SetAdmin(_ context.Context, id string, isAdmin bool) error {
	_, err := r.update(id, func(a *models.Account) bool {
		a.IsAdmin = isAdmin
		return true
	})
	return err
}

func (r *MemoryAccountRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if _, ok := r.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(r.accounts, id)
	r.notifyLocked(id)
	return nil
}

// memWatcher queues revisions so writers never block on a slow reader.
type memWatcher struct {
	mu     sync.Mutex
	queue  []models.AccountEvent
	signal chan struct{}
}

func (w *memWatcher) push(ev models.AccountEvent) {
	w.mu.Lock()
	w.queue = append(w.queue, ev)
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *memWatcher) drain() []models.AccountEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.queue
	w.queue = nil
	return out
}

func (r *MemoryAccountRepo) eventLocked(id string) models.AccountEvent {
	a, ok := r.accounts[id]
	if !ok {
		return models.AccountEvent{Deleted: true}
	}
	return models.AccountEvent{Account: a.Clone()}
}

func (r *MemoryAccountRepo) notifyLocked(id string) {
	ev := r.eventLocked(id)
	for w := range r.watchers[id] {
		w.push(ev)
	}
}

func (r *MemoryAccountRepo) Watch(ctx context.Context, id string) (<-chan models.AccountEvent, error) {
	r.mu.Lock()
	if r.fail != nil {
		err := r.fail
		r.mu.Unlock()
		return nil, err
	}
	w := &memWatcher{signal: make(chan struct{}, 1)}
	if r.watchers[id] == nil {
		r.watchers[id] = make(map[*memWatcher]struct{})
	}
	r.watchers[id][w] = struct{}{}
	w.push(r.eventLocked(id))
	r.mu.Unlock()

	out := make(chan models.AccountEvent)
	go func() {
		defer close(out)
		defer func() {
			r.mu.Lock()
			delete(r.watchers[id], w)
			r.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.signal:
			}
			for _, ev := range w.drain() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
