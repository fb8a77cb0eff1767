package shell

import (
	"context"
	"sync"
	"time"

	accountRepo "skylark/database/repository/account"
	groupRepo "skylark/database/repository/group"
	messageRepo "skylark/database/repository/message"
	"skylark/localstore"
	"skylark/models"
	"skylark/services/notification"
	"skylark/services/session"

	"go.uber.org/zap"
)

// Deps are the process-wide collaborators every shell shares.
type Deps struct {
	Accounts         accountRepo.AccountRepository
	Groups           groupRepo.GroupRepository
	Messages         messageRepo.MessageRepository
	Feed             *notification.Feed
	Queue            notification.Enqueuer
	SessionOptions   session.Options
	SummaryThreshold int
	Logger           *zap.Logger
	Now              func() time.Time
}

// Shell is the session context of one client: who is logged in, which
// group is open and what the user has yet to be told.
type Shell struct {
	ID         string
	Descriptor string

	deps    Deps
	storage *localstore.SessionStorage
	manager *session.Manager
	log     *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	consumeOnce sync.Once
	consumed    chan struct{}

	mu          sync.Mutex
	activeGroup string
	pushToken   string
	notices     []Notice
	nextNotice  uint64
	subscribers map[chan Notice]struct{}
	lastUsed    time.Time
	relayStop   context.CancelFunc
	relayDone   chan struct{}
	closed      bool
}

// New builds a shell over the client's store. Call Init before use.
func New(clientID, descriptor string, store localstore.Store, deps Deps) *Shell {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger.With(zap.String("clientId", clientID))
	opts := deps.SessionOptions
	opts.Logger = log

	storage := localstore.NewSessionStorage(store)
	ctx, cancel := context.WithCancel(context.Background())
	return &Shell{
		ID:          clientID,
		Descriptor:  descriptor,
		deps:        deps,
		storage:     storage,
		manager:     session.NewManager(deps.Accounts, storage, descriptor, opts),
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		consumed:    make(chan struct{}),
		subscribers: make(map[chan Notice]struct{}),
		lastUsed:    deps.Now(),
	}
}

// Init restores the stored session and starts reacting to session events.
func (s *Shell) Init(ctx context.Context) error {
	s.manager.Start()
	s.consumeOnce.Do(func() { go s.consume() })
	if err := s.manager.Init(ctx); err != nil {
		return err
	}
	if v := s.manager.Current(); v.Authenticated() {
		s.startRelay(v.Account.ID)
	}
	return nil
}

// Close tears the shell down. The stored session is kept for the next Init.
func (s *Shell) Close() {
	s.manager.Close()
	s.consumeOnce.Do(func() { go s.consume() })
	<-s.consumed
	s.stopRelay()
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
}

// Session exposes the session protocol driving this client.
func (s *Shell) Session() *session.Manager {
	return s.manager
}

func (s *Shell) Current() session.View {
	return s.manager.Current()
}

func (s *Shell) consume() {
	defer close(s.consumed)
	for ev := range s.manager.Events() {
		s.handle(ev)
	}
}

func (s *Shell) handle(ev session.Event) {
	switch ev.Kind {
	case session.EventForcedLogout:
		s.SetActiveGroup("")
		s.stopRelay()
		s.push(Notice{Kind: NoticeForcedLogout, Reason: string(ev.Reason), Text: ev.Reason.Message()})
	case session.EventLoggedOut:
		s.SetActiveGroup("")
		s.stopRelay()
		s.push(Notice{Kind: NoticeSession, Text: "logged_out"})
	case session.EventLoggedIn, session.EventReload:
		s.SetActiveGroup("")
		s.stopRelay()
		if ev.Account != nil {
			s.startRelay(ev.Account.ID)
		}
		s.push(Notice{Kind: NoticeSession, Text: string(ev.Kind), Account: ev.Account})
	case session.EventAccountUpdated:
		s.push(Notice{Kind: NoticeSession, Text: string(ev.Kind), Account: ev.Account})
	}
}

// startRelay replaces any running relay with one for accountID. Nothing
// starts once the session has moved off that account, so a logout racing
// the caller never leaves a relay behind.
func (s *Shell) startRelay(accountID string) {
	s.stopRelay()
	if s.deps.Feed == nil {
		return
	}

	notifiers := notification.MultiNotifier{s}
	if s.deps.Queue != nil {
		notifiers = append(notifiers, &notification.PushNotifier{
			Queue:     s.deps.Queue,
			ClientID:  s.ID,
			PushToken: s.PushToken,
		})
	}
	relay := notification.NewRelay(notification.RelayConfig{
		AccountID:        accountID,
		ActiveGroup:      s.ActiveGroup,
		Storage:          s.storage,
		Groups:           s.deps.Groups,
		Messages:         s.deps.Messages,
		Notifier:         notifiers,
		OnVisible:        s.showMessage,
		SummaryThreshold: s.deps.SummaryThreshold,
		Logger:           s.log,
		Now:              s.deps.Now,
	})

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.mu.Lock()
	v := s.manager.Current()
	if s.closed || s.relayStop != nil || !v.Authenticated() || v.Account.ID != accountID {
		s.mu.Unlock()
		cancel()
		return
	}
	s.relayStop, s.relayDone = cancel, done
	s.mu.Unlock()

	events, unsubscribe := s.deps.Feed.Subscribe()
	go func() {
		defer close(done)
		defer unsubscribe()
		if err := relay.Start(ctx); err != nil {
			s.log.Warn("Failed to replay missed messages", zap.Error(err))
		}
		relay.Run(ctx, events)
	}()
}

func (s *Shell) stopRelay() {
	s.mu.Lock()
	stop, done := s.relayStop, s.relayDone
	s.relayStop, s.relayDone = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}

// Notify turns a relay alert into a notice.
func (s *Shell) Notify(_ context.Context, alert models.Alert) error {
	a := alert
	s.push(Notice{Kind: NoticeAlert, Alert: &a, Text: a.Title() + ": " + a.Body()})
	return nil
}

func (s *Shell) showMessage(msg models.Message) {
	m := msg
	s.push(Notice{Kind: NoticeMessage, ChatMessage: &m})
}

func (s *Shell) push(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.nextNotice++
	n.ID = s.nextNotice
	if n.At.IsZero() {
		n.At = s.deps.Now()
	}
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	for ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			s.log.Warn("Notice subscriber is full, dropping notice", zap.Uint64("noticeId", n.ID))
		}
	}
}

// Notices returns retained notices with an ID above afterID.
func (s *Shell) Notices(afterID uint64) []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Notice{}
	for _, n := range s.notices {
		if n.ID > afterID {
			out = append(out, n)
		}
	}
	return out
}

// Subscribe streams new notices until the returned func is called or the
// shell closes.
func (s *Shell) Subscribe() (<-chan Notice, func()) {
	ch := make(chan Notice, 32)
	s.mu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.subscribers[ch] = struct{}{}
	}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (s *Shell) SetActiveGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeGroup = groupID
}

func (s *Shell) ActiveGroup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeGroup
}

func (s *Shell) SetPushToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushToken = token
}

func (s *Shell) PushToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushToken
}

// Touch marks the shell as recently used.
func (s *Shell) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.deps.Now()
}

// idle reports whether the shell has been unused since before cutoff and
// has no live event stream.
func (s *Shell) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0 && s.lastUsed.Before(cutoff)
}
