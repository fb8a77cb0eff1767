package shell

import (
	"context"
	"sync"
	"time"

	"skylark/localstore"

	"go.uber.org/zap"
)

// Registry maps client ids to live shells.
type Registry struct {
	deps   Deps
	stores localstore.Factory
	log    *zap.Logger

	mu     sync.Mutex
	shells map[string]*entry
}

// entry is a shell that may still be initializing. ready is closed once
// shell or err is set.
type entry struct {
	ready chan struct{}
	shell *Shell
	err   error
}

func (e *entry) live() (*Shell, bool) {
	select {
	case <-e.ready:
		return e.shell, e.shell != nil
	default:
		return nil, false
	}
}

func NewRegistry(deps Deps, stores localstore.Factory) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		deps:   deps,
		stores: stores,
		log:    deps.Logger,
		shells: make(map[string]*entry),
	}
}

// Get returns the client's shell, creating and initializing it on first use.
// Concurrent calls for the same client share one initialization.
func (r *Registry) Get(ctx context.Context, clientID, descriptor string) (*Shell, error) {
	r.mu.Lock()
	e, ok := r.shells[clientID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.shells[clientID] = e
	}
	r.mu.Unlock()

	if !ok {
		r.create(ctx, e, clientID, descriptor)
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	e.shell.Touch()
	return e.shell, nil
}

func (r *Registry) create(ctx context.Context, e *entry, clientID, descriptor string) {
	defer close(e.ready)

	s := New(clientID, descriptor, r.stores(clientID), r.deps)
	if err := s.Init(ctx); err != nil {
		s.Close()
		e.err = err
		r.mu.Lock()
		if r.shells[clientID] == e {
			delete(r.shells, clientID)
		}
		r.mu.Unlock()
		return
	}
	e.shell = s
	r.log.Debug("Client shell created", zap.String("clientId", clientID))
}

// Lookup returns an existing shell without creating one.
func (r *Registry) Lookup(clientID string) (*Shell, bool) {
	r.mu.Lock()
	e, ok := r.shells[clientID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.live()
}

// Len counts initialized shells.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.shells {
		if _, ok := e.live(); ok {
			n++
		}
	}
	return n
}

// Sweep closes shells idle for longer than idle and returns how many.
// Their stored sessions survive and are restored on the next request.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.deps.Now().Add(-idle)

	r.mu.Lock()
	var stale []*Shell
	for id, e := range r.shells {
		if s, ok := e.live(); ok && s.idle(cutoff) {
			stale = append(stale, s)
			delete(r.shells, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		r.log.Info("Swept idle client shells", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// RunSweeper sweeps every interval until ctx ends.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Shutdown closes every shell.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := r.shells
	r.shells = make(map[string]*entry)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			<-e.ready
			if e.shell != nil {
				e.shell.Close()
			}
		}(e)
	}
	wg.Wait()
}
