package messageRepo

import (
	"context"
	"errors"
	"sync"
	"time"

	"skylark/models"

	"github.com/google/uuid"
)

// ErrStreamBroken is delivered to watchers cut off by Disconnect.
var ErrStreamBroken = errors.New("message stream interrupted")

// MemoryMessageRepo is an in-process MessageRepository for tests. Now
// stamps new messages and may be replaced to control time.
type MemoryMessageRepo struct {
	Now func() time.Time

	mu       sync.Mutex
	messages []models.Message
	watchers map[chan MessageEvent]struct{}
	fail     error
	offline  bool
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{
		Now:      ServerTime,
		watchers: make(map[chan MessageEvent]struct{}),
	}
}

func (r *MemoryMessageRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Disconnect ends every open insert stream with ErrStreamBroken and
// refuses new ones until Reconnect.
func (r *MemoryMessageRepo) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = true
	for ch := range r.watchers {
		select {
		case ch <- MessageEvent{Err: ErrStreamBroken}:
		default:
		}
		close(ch)
		delete(r.watchers, ch)
	}
}

func (r *MemoryMessageRepo) Reconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = false
}

// Watchers returns the number of open insert streams.
func (r *MemoryMessageRepo) Watchers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

func (r *MemoryMessageRepo) Create(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = r.Now()
	r.messages = append(r.messages, *msg)
	for ch := range r.watchers {
		select {
		case ch <- MessageEvent{Message: *msg}:
		default:
		}
	}
	return nil
}

func (r *MemoryMessageRepo) ListByGroup(_ context.Context, groupID string, limit int64) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	out := []models.Message{}
	for _, m := range r.messages {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	models.SortByTime(out)
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (r *MemoryMessageRepo) ListSince(_ context.Context, groupIDs []string, since time.Time) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	wanted := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	out := []models.Message{}
	for _, m := range r.messages {
		if wanted[m.GroupID] && m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	models.SortByTime(out)
	return out, nil
}

func (r *MemoryMessageRepo) DeleteByGroup(_ context.Context, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.GroupID != groupID {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	return nil
}

func (r *MemoryMessageRepo) WatchInserts(ctx context.Context) (<-chan MessageEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	if r.offline {
		return nil, ErrStreamBroken
	}
	ch := make(chan MessageEvent, 64)
	r.watchers[ch] = struct{}{}
	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.watchers[ch]; ok {
			delete(r.watchers, ch)
			close(ch)
		}
	}()
	return ch, nil
}
