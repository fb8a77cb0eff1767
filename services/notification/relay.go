package notification

import (
	"context"
	"fmt"
	"time"

	groupRepo "skylark/database/repository/group"
	messageRepo "skylark/database/repository/message"
	"skylark/localstore"
	"skylark/models"

	"go.uber.org/zap"
)

// DefaultSummaryThreshold is how many missed messages per group are
// alerted one by one before they collapse into a summary.
const DefaultSummaryThreshold = 3

// RelayConfig wires a Relay to one client's session.
type RelayConfig struct {
	AccountID        string
	ActiveGroup      func() string
	Storage          *localstore.SessionStorage
	Groups           groupRepo.GroupRepository
	Messages         messageRepo.MessageRepository
	Notifier         Notifier
	// OnVisible, if set, receives messages that land in the open group.
	OnVisible        func(models.Message)
	SummaryThreshold int
	Logger           *zap.Logger
	Now              func() time.Time
}

// Relay raises alerts for messages in groups the user is not viewing. It
// is not safe for concurrent use; Run drives it from one goroutine.
type Relay struct {
	cfg  RelayConfig
	log  *zap.Logger
	seen map[string]time.Time
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = DefaultSummaryThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ActiveGroup == nil {
		cfg.ActiveGroup = func() string { return "" }
	}
	return &Relay{
		cfg:  cfg,
		log:  cfg.Logger.With(zap.String("accountId", cfg.AccountID)),
		seen: map[string]time.Time{},
	}
}

// Start loads the watermarks and replays anything missed while this
// client was offline.
func (r *Relay) Start(ctx context.Context) error {
	seen, err := r.cfg.Storage.LastSeen(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watermarks: %w", err)
	}
	r.seen = seen

	since, err := r.cfg.Storage.LastOffline(ctx)
	if err != nil {
		return fmt.Errorf("failed to load offline time: %w", err)
	}
	if since.IsZero() {
		return nil
	}
	if err := r.Replay(ctx, since); err != nil {
		return err
	}
	return r.cfg.Storage.ClearLastOffline(ctx)
}

// Stop records now as the start of an offline period unless one is
// already open.
func (r *Relay) Stop(ctx context.Context) error {
	return r.Disconnected(ctx, r.cfg.Now())
}

// Run handles feed events until ctx ends or the feed closes, then stops.
func (r *Relay) Run(ctx context.Context, events <-chan FeedEvent) {
	defer func() {
		if err := r.Stop(context.Background()); err != nil {
			r.log.Warn("Failed to record offline time", zap.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.Handle(ctx, ev); err != nil {
				r.log.Warn("Relay failed to handle feed event", zap.Error(err))
			}
		}
	}
}

// Handle dispatches one feed event.
func (r *Relay) Handle(ctx context.Context, ev FeedEvent) error {
	switch ev.Kind {
	case FeedMessage:
		return r.HandleMessage(ctx, ev.Message)
	case FeedDisconnected:
		return r.Disconnected(ctx, ev.At)
	case FeedReconnected:
		return r.Reconnected(ctx)
	}
	return nil
}

// Disconnected remembers when the stream went away.
func (r *Relay) Disconnected(ctx context.Context, at time.Time) error {
	existing, err := r.cfg.Storage.LastOffline(ctx)
	if err == nil && !existing.IsZero() {
		return nil
	}
	return r.cfg.Storage.SaveLastOffline(ctx, at)
}

// Reconnected replays from the stored offline time and clears it.
func (r *Relay) Reconnected(ctx context.Context) error {
	since, err := r.cfg.Storage.LastOffline(ctx)
	if err != nil {
		return err
	}
	if since.IsZero() {
		return nil
	}
	if err := r.Replay(ctx, since); err != nil {
		return err
	}
	return r.cfg.Storage.ClearLastOffline(ctx)
}

func (r *Relay) advance(groupID string, at time.Time) bool {
	if last, ok := r.seen[groupID]; ok && !at.After(last) {
		return false
	}
	r.seen[groupID] = at
	return true
}

func (r *Relay) persist(ctx context.Context) {
	if err := r.cfg.Storage.SaveLastSeen(ctx, r.seen); err != nil {
		r.log.Warn("Failed to persist watermarks", zap.Error(err))
	}
}

// HandleMessage alerts for msg when it is new and neither the user's own
// nor in the open group, provided the user belongs to its group.
func (r *Relay) HandleMessage(ctx context.Context, msg models.Message) error {
	if msg.GroupID == r.cfg.ActiveGroup() {
		if r.advance(msg.GroupID, msg.CreatedAt) {
			r.persist(ctx)
		}
		if r.cfg.OnVisible != nil {
			r.cfg.OnVisible(msg)
		}
		return nil
	}
	if msg.SenderID == r.cfg.AccountID {
		return nil
	}

	g, err := r.cfg.Groups.GetByID(ctx, msg.GroupID)
	if err != nil {
		return fmt.Errorf("failed to look up group %s: %w", msg.GroupID, err)
	}
	if g == nil || !g.HasMember(r.cfg.AccountID) {
		return nil
	}
	if !r.advance(msg.GroupID, msg.CreatedAt) {
		return nil
	}
	r.persist(ctx)

	return r.cfg.Notifier.Notify(ctx, models.Alert{
		Kind:      models.AlertMessage,
		GroupID:   g.ID,
		GroupName: g.Name,
		Sender:    msg.SenderName,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	})
}

// Replay alerts for messages created after since. A group with more
// missed messages than the threshold gets one summary alert.
func (r *Relay) Replay(ctx context.Context, since time.Time) error {
	groups, err := r.cfg.Groups.ListByMember(ctx, r.cfg.AccountID)
	if err != nil {
		return fmt.Errorf("failed to list groups for replay: %w", err)
	}
	if len(groups) == 0 {
		return nil
	}
	names := make(map[string]string, len(groups))
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
		ids = append(ids, g.ID)
	}

	msgs, err := r.cfg.Messages.ListSince(ctx, ids, since)
	if err != nil {
		return fmt.Errorf("failed to list missed messages: %w", err)
	}
	models.SortByTime(msgs)

	active := r.cfg.ActiveGroup()
	var order []string
	missed := map[string][]models.Message{}
	for _, m := range msgs {
		if m.SenderID == r.cfg.AccountID {
			continue
		}
		if m.GroupID == active {
			r.advance(m.GroupID, m.CreatedAt)
			continue
		}
		if !r.advance(m.GroupID, m.CreatedAt) {
			continue
		}
		if _, ok := missed[m.GroupID]; !ok {
			order = append(order, m.GroupID)
		}
		missed[m.GroupID] = append(missed[m.GroupID], m)
	}
	r.persist(ctx)

	var notifyErr error
	for _, groupID := range order {
		batch := missed[groupID]
		if len(batch) > r.cfg.SummaryThreshold {
			last := batch[len(batch)-1]
			notifyErr = r.notify(ctx, notifyErr, models.Alert{
				Kind:      models.AlertSummary,
				GroupID:   groupID,
				GroupName: names[groupID],
				Count:     len(batch),
				CreatedAt: last.CreatedAt,
			})
			continue
		}
		for _, m := range batch {
			notifyErr = r.notify(ctx, notifyErr, models.Alert{
				Kind:      models.AlertMessage,
				GroupID:   groupID,
				GroupName: names[groupID],
				Sender:    m.SenderName,
				Text:      m.Text,
				CreatedAt: m.CreatedAt,
			})
		}
	}
	if len(order) > 0 {
		r.log.Info("Replayed missed messages", zap.Int("groups", len(order)), zap.Time("since", since))
	}
	return notifyErr
}

// notify keeps going after a failed delivery and reports the first error.
func (r *Relay) notify(ctx context.Context, prev error, alert models.Alert) error {
	if err := r.cfg.Notifier.Notify(ctx, alert); err != nil && prev == nil {
		return err
	}
	return prev
}
