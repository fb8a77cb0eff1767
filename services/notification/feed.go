package notification

import (
	"context"
	"sync"
	"time"

	messageRepo "skylark/database/repository/message"
	"skylark/models"

	"go.uber.org/zap"
)

// FeedEventKind identifies a FeedEvent.
type FeedEventKind int

const (
	FeedMessage FeedEventKind = iota
	FeedDisconnected
	FeedReconnected
)

// FeedEvent is a new message or a change in stream connectivity.
type FeedEvent struct {
	Kind    FeedEventKind
	Message models.Message
	At      time.Time
}

const feedBuffer = 256

// Feed follows message inserts across all groups and fans them out to
// subscribers. One Feed serves the whole process.
type Feed struct {
	repo       messageRepo.MessageRepository
	log        *zap.Logger
	now        func() time.Time
	minBackoff time.Duration
	maxBackoff time.Duration

	mu   sync.Mutex
	subs map[chan FeedEvent]struct{}
}

func NewFeed(repo messageRepo.MessageRepository, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		repo:       repo,
		log:        logger,
		now:        time.Now,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		subs:       make(map[chan FeedEvent]struct{}),
	}
}

// SetBackoff overrides the reconnect delays.
func (f *Feed) SetBackoff(min, max time.Duration) {
	f.minBackoff, f.maxBackoff = min, max
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (f *Feed) Subscribe() (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, feedBuffer)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) broadcast(ev FeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.log.Warn("Feed subscriber is full, dropping event", zap.Int("kind", int(ev.Kind)))
		}
	}
}

// Run keeps the insert stream open until ctx ends, reconnecting with
// capped exponential backoff. Subscribers see one Disconnected per outage
// and one Reconnected when the stream is back.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.minBackoff
	connected := true
	defer f.closeAll()

	for {
		events, err := f.repo.WatchInserts(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warn("Message feed unavailable", zap.Error(err), zap.Duration("retryIn", backoff))
			if connected {
				connected = false
				f.broadcast(FeedEvent{Kind: FeedDisconnected, At: f.now()})
			}
		} else {
			if !connected {
				connected = true
				f.log.Info("Message feed reconnected")
				f.broadcast(FeedEvent{Kind: FeedReconnected, At: f.now()})
			}
			backoff = f.minBackoff
			f.consume(ctx, events)
			if ctx.Err() != nil {
				return nil
			}
			connected = false
			f.broadcast(FeedEvent{Kind: FeedDisconnected, At: f.now()})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.maxBackoff {
			backoff = f.maxBackoff
		}
	}
}

func (f *Feed) consume(ctx context.Context, events <-chan messageRepo.MessageEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Err != nil {
				f.log.Warn("Message feed interrupted", zap.Error(ev.Err))
				continue
			}
			f.broadcast(FeedEvent{Kind: FeedMessage, Message: ev.Message, At: ev.Message.CreatedAt})
		}
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		close(ch)
		delete(f.subs, ch)
	}
}
