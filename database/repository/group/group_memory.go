package groupRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"skylark/models"

	"github.com/google/uuid"
)

// MemoryGroupRepo is an in-process GroupRepository for tests.
type MemoryGroupRepo struct {
	mu     sync.Mutex
	groups map[string]models.Group
	fail   error
}

func NewMemoryGroupRepo() *MemoryGroupRepo {
	return &MemoryGroupRepo{groups: make(map[string]models.Group)}
}

func (r *MemoryGroupRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func clone(g models.Group) models.Group {
	g.Members = append([]string{}, g.Members...)
	return g
}

func (r *MemoryGroupRepo) GetByID(_ context.Context, id string) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	g, ok := r.groups[id]
	if !ok {
		return nil, nil
	}
	g = clone(g)
	return &g, nil
}

func (r *MemoryGroupRepo) GetByCode(_ context.Context, code string) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, g := range r.groups {
		if g.Code == code {
			g = clone(g)
			return &g, nil
		}
	}
	return nil, nil
}

func (r *MemoryGroupRepo) list(match func(models.Group) bool) ([]models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	out := []models.Group{}
	for _, g := range r.groups {
		if match(g) {
			out = append(out, clone(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryGroupRepo) ListByMember(_ context.Context, accountID string) ([]models.Group, error) {
	return r.list(func(g models.Group) bool { return g.HasMember(accountID) })
}

func (r *MemoryGroupRepo) GetAll(_ context.Context) ([]models.Group, error) {
	return r.list(func(models.Group) bool { return true })
}

func (r *MemoryGroupRepo) Create(_ context.Context, group *models.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, g := range r.groups {
		if g.Code == group.Code {
			return ErrDuplicateCode
		}
	}
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	if group.Members == nil {
		group.Members = []string{}
	}
	r.groups[group.ID] = clone(*group)
	return nil
}

func (r *MemoryGroupRepo) update(id string, fn func(g *models.Group)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	g, ok := r.groups[id]
	if !ok {
		return ErrNotFound
	}
	g = clone(g)
	fn(&g)
	r.groups[id] = g
	return nil
}

func without(members []string, id string) []string {
	out := []string{}
	for _, m := range members {
		if m != id {
			out = append(out, m)
		}
	}
	return out
}

func (r *MemoryGroupRepo) AddMember(_ context.Context, groupID, accountID string) error {
	return r.update(groupID, func(g *models.Group) {
		if !g.HasMember(accountID) {
			g.Members = append(g.Members, accountID)
		}
	})
}

func (r *MemoryGroupRepo) RemoveMember(_ context.Context, groupID, accountID string) error {
	return r.update(groupID, func(g *models.Group) {
		g.Members = without(g.Members, accountID)
	})
}

func (r *MemoryGroupRepo) RemoveMemberEverywhere(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for id, g := range r.groups {
		g.Members = without(g.Members, accountID)
		r.groups[id] = g
	}
	return nil
}

func (r *MemoryGroupRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if _, ok := r.groups[id]; !ok {
		return ErrNotFound
	}
	delete(r.groups, id)
	return nil
}
