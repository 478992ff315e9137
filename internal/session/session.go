// Package session ties the transport, the page cache and the feed together
// for one signed-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"discuss/internal/content"
	"discuss/internal/feed"
	"discuss/internal/models"
	"discuss/internal/storage"
	"discuss/internal/transport"
	"discuss/internal/typing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNoSuchMessage = errors.New("message is not in the feed")

// Transport is the live connection as the session uses it.
type Transport interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close() error
	SendMessage(msg models.OutgoingMessage) error
	StartTyping()
	StopTyping()
	Blur()
	State() transport.State
	ConnectionError() error
}

// Query is the page cache bound to the feed store.
type Query interface {
	Messages(ctx context.Context, limit, offset int) (models.Page, error)
	EditMessage(ctx context.Context, id int64, content string) error
	DeleteMessage(ctx context.Context, id int64) error
	AddMessage(m models.Message)
	Feed() *feed.Store
	PageSize() int
}

// History is the local snapshot store. It may be nil.
type History interface {
	LoadWindow() (storage.Window, error)
	SaveWindow(w storage.Window) error
	LoadDraft() (storage.Draft, error)
	SaveDraft(d storage.Draft) error
}

type Config struct {
	UserID  int64
	Query   Query
	History History
	Typing  typing.Contract
	Clock   typing.Clock
	Logger  *zap.SugaredLogger
}

// View is what the UI renders.
type View struct {
	Feed        feed.Snapshot
	Loading     bool
	LoadingMore bool
	FetchErr    error
	Conn        transport.State
	ConnErr     error
	Typing      []string
	ReplyTo     *models.Message
	CurrentPage int
}

type Session struct {
	userID  int64
	query   Query
	store   *feed.Store
	history History
	logger  *zap.SugaredLogger

	transport Transport
	tracker   *typing.Tracker

	mu          sync.Mutex
	authors     map[int64]models.Author
	typingIDs   []int64
	loading     bool
	loadingMore bool
	fetchErr    error
	conn        transport.State
	connErr     error
	replyTo     *models.Message
	currentPage int
	onChange    func()
}

// New builds a session. newTransport receives the handlers the transport
// must call for inbound events.
func New(cfg Config, newTransport func(transport.Handlers) Transport) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Typing.TTL <= 0 {
		cfg.Typing = typing.DefaultContract()
	}

	s := &Session{
		userID:  cfg.UserID,
		query:   cfg.Query,
		store:   cfg.Query.Feed(),
		history: cfg.History,
		logger:  cfg.Logger,
		authors: make(map[int64]models.Author),
	}
	s.tracker = typing.NewTracker(cfg.Clock, cfg.Typing, s.typingChanged)
	s.store.Subscribe(s.feedChanged)
	s.transport = newTransport(transport.Handlers{
		OnNewMessage:  s.handleNewMessage,
		OnUserTyping:  s.handleUserTyping,
		OnStateChange: s.handleStateChange,
	})
	return s
}

// OnChange registers the single listener notified after any state change.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start seeds the feed from local history, then connects and loads the
// newest page concurrently. Connection failures end up in the view, not in
// the returned error.
func (s *Session) Start(ctx context.Context) error {
	s.seed()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.transport.Connect(ctx); err != nil {
			s.logger.Warnw("Initial connect failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.Load(ctx)
	})
	return g.Wait()
}

func (s *Session) seed() {
	if s.history == nil {
		return
	}
	w, err := s.history.LoadWindow()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warnw("Failed to load local history", "error", err)
		}
		return
	}
	s.store.Dispatch(feed.Replace(models.Page{Messages: w.Messages, HasMore: w.HasMore, Total: w.Total}))
	s.logger.Debugw("Seeded feed from local history", "messages", len(w.Messages))

	d, err := s.history.LoadDraft()
	if err != nil || d.ReplyToID == 0 {
		return
	}
	if m, ok := s.store.Snapshot().Find(d.ReplyToID); ok {
		s.mu.Lock()
		s.replyTo = &m
		s.mu.Unlock()
	}
}

// Load fetches the newest page and replaces the feed with it.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.fetchErr = nil
	s.mu.Unlock()
	s.notify()

	page, err := s.query.Messages(ctx, s.query.PageSize(), 0)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.fetchErr = err
	} else {
		s.currentPage = 0
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Errorw("Failed to load messages", "error", err)
		s.notify()
		return err
	}
	if !s.store.Dispatch(feed.Replace(page)) {
		s.notify()
	}
	return nil
}

// Retry repeats a failed initial load.
func (s *Session) Retry(ctx context.Context) error {
	return s.Load(ctx)
}

// LoadMore fetches the page before the oldest loaded one and prepends it.
// It is a no-op when there is nothing more or a load is in flight.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || !s.store.Snapshot().HasMore {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	next := s.currentPage + 1
	s.mu.Unlock()
	s.notify()

	size := s.query.PageSize()
	page, err := s.query.Messages(ctx, size, next*size)

	s.mu.Lock()
	s.loadingMore = false
	if err == nil {
		s.currentPage = next
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warnw("Failed to load older messages", "page", next, "error", err)
		s.notify()
		return err
	}
	if !s.store.Dispatch(feed.Prepend(page)) {
		s.notify()
	}
	return nil
}

// Send validates content and emits it, replying to the selected message if
// any. The reply context is cleared once the message is out.
func (s *Session) Send(text string) error {
	if err := content.ValidateContent(text); err != nil {
		return err
	}

	msg := models.OutgoingMessage{Content: text, MessageType: models.MessageTypeText}
	s.mu.Lock()
	if s.replyTo != nil {
		id := s.replyTo.ID
		msg.ReplyToID = &id
	}
	s.mu.Unlock()

	if err := s.transport.SendMessage(msg); err != nil {
		return err
	}
	s.transport.StopTyping()

	s.mu.Lock()
	s.replyTo = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

// Typing reports a keystroke. An empty compose box stops typing.
func (s *Session) Typing(text string) {
	if text == "" {
		s.transport.StopTyping()
		return
	}
	s.transport.StartTyping()
}

func (s *Session) Blur() {
	s.transport.Blur()
}

func (s *Session) SetReplyTo(id int64) error {
	m, ok := s.store.Snapshot().Find(id)
	if !ok {
		return fmt.Errorf("reply to %d: %w", id, ErrNoSuchMessage)
	}
	s.mu.Lock()
	s.replyTo = &m
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) ClearReply() {
	s.mu.Lock()
	had := s.replyTo != nil
	s.replyTo = nil
	s.mu.Unlock()
	if had {
		s.notify()
	}
}

func (s *Session) Edit(ctx context.Context, id int64, text string) error {
	if err := content.ValidateContent(text); err != nil {
		return err
	}
	if err := s.query.EditMessage(ctx, id, text); err != nil {
		s.logger.Errorw("Failed to edit message", "message_id", id, "error", err)
		return err
	}
	return nil
}

func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.query.DeleteMessage(ctx, id); err != nil {
		s.logger.Errorw("Failed to delete message", "message_id", id, "error", err)
		return err
	}

	s.mu.Lock()
	cleared := s.replyTo != nil && s.replyTo.ID == id
	if cleared {
		s.replyTo = nil
	}
	s.mu.Unlock()
	if cleared {
		s.notify()
	}
	return nil
}

func (s *Session) Reconnect(ctx context.Context) error {
	return s.transport.Reconnect(ctx)
}

// CanModify reports whether the message belongs to the signed-in user.
func (s *Session) CanModify(m models.Message) bool {
	return s.userID != 0 && m.User.ID == s.userID
}

func (s *Session) View() View {
	snap := s.store.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.typingIDs))
	for _, id := range s.typingIDs {
		names = append(names, s.displayNameLocked(id))
	}
	var reply *models.Message
	if s.replyTo != nil {
		r := *s.replyTo
		reply = &r
	}
	return View{
		Feed:        snap,
		Loading:     s.loading,
		LoadingMore: s.loadingMore,
		FetchErr:    s.fetchErr,
		Conn:        s.conn,
		ConnErr:     s.connErr,
		Typing:      names,
		ReplyTo:     reply,
		CurrentPage: s.currentPage,
	}
}

func (s *Session) displayNameLocked(id int64) string {
	if a, ok := s.authors[id]; ok {
		return a.DisplayName()
	}
	return "Someone"
}

// Draft returns the compose text saved by the previous run.
func (s *Session) Draft() storage.Draft {
	if s.history == nil {
		return storage.Draft{}
	}
	d, err := s.history.LoadDraft()
	if err != nil {
		s.logger.Warnw("Failed to load draft", "error", err)
	}
	return d
}

// Close persists the feed window and the draft, then disconnects.
func (s *Session) Close(draft string) error {
	s.tracker.Close()
	err := s.transport.Close()

	if s.history != nil {
		snap := s.store.Snapshot()
		if snap.Loaded {
			if werr := s.history.SaveWindow(storage.Window{Messages: snap.Messages, HasMore: snap.HasMore, Total: snap.Total}); werr != nil {
				s.logger.Warnw("Failed to save local history", "error", werr)
			}
		}
		var replyID int64
		s.mu.Lock()
		if s.replyTo != nil {
			replyID = s.replyTo.ID
		}
		s.mu.Unlock()
		if derr := s.history.SaveDraft(storage.Draft{Text: draft, ReplyToID: replyID}); derr != nil {
			s.logger.Warnw("Failed to save draft", "error", derr)
		}
	}
	return err
}

func (s *Session) handleNewMessage(m models.Message) {
	s.query.AddMessage(m)
}

func (s *Session) handleUserTyping(ev models.TypingEvent) {
	if ev.UserID == s.userID {
		return
	}
	s.tracker.Set(ev.UserID, ev.Typing)
}

func (s *Session) handleStateChange(state transport.State, err error) {
	s.mu.Lock()
	s.conn = state
	s.connErr = err
	s.mu.Unlock()
	s.notify()
}

func (s *Session) typingChanged(users []int64) {
	s.mu.Lock()
	s.typingIDs = slices.Clone(users)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) feedChanged(snap feed.Snapshot) {
	s.mu.Lock()
	for _, m := range snap.Messages {
		s.authors[m.User.ID] = m.User
		if m.ReplyTo != nil {
			if _, ok := s.authors[m.ReplyTo.User.ID]; !ok {
				s.authors[m.ReplyTo.User.ID] = m.ReplyTo.User
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}
