package feed

import (
	"slices"
	"sync"

	"discuss/internal/models"

	"github.com/google/uuid"
)

type ActionKind int

const (
	// ActionReplace swaps the whole window for a fresh first page.
	ActionReplace ActionKind = iota
	// ActionPrepend puts an older page in front of the window.
	ActionPrepend
	// ActionAppend adds one live message at the end.
	ActionAppend
	// ActionUpsert updates known ids in place and appends unknown ones.
	ActionUpsert
	// ActionUpdate replaces a known message; unknown ids are ignored.
	ActionUpdate
	// ActionRemove drops a message by id.
	ActionRemove
)

// Action is one mutation of the feed window.
type Action struct {
	Kind     ActionKind
	Page     models.Page
	Messages []models.Message
	ID       int64
}

func Replace(page models.Page) Action { return Action{Kind: ActionReplace, Page: page} }
func Prepend(page models.Page) Action { return Action{Kind: ActionPrepend, Page: page} }
func Append(m models.Message) Action {
	return Action{Kind: ActionAppend, Messages: []models.Message{m}}
}
func Upsert(ms []models.Message) Action { return Action{Kind: ActionUpsert, Messages: ms} }
func Update(m models.Message) Action {
	return Action{Kind: ActionUpdate, Messages: []models.Message{m}}
}
func Remove(id int64) Action { return Action{Kind: ActionRemove, ID: id} }

// Snapshot is an immutable copy of the window.
type Snapshot struct {
	Session  string
	Version  uint64
	Messages []models.Message
	HasMore  bool
	Total    int
	Loaded   bool
}

// Find returns the message with the given id.
func (s Snapshot) Find(id int64) (models.Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Store is the single source of truth for the visible message window.
// Every mutation goes through Dispatch, from fetch and push paths alike.
type Store struct {
	session string

	mu       sync.RWMutex
	messages []models.Message
	index    map[int64]int
	hasMore  bool
	total    int
	loaded   bool
	version  uint64

	subMu sync.Mutex
	subs  []func(Snapshot)
}

func NewStore() *Store {
	return &Store{
		session: uuid.NewString(),
		index:   make(map[int64]int),
	}
}

// Session is the stable handle of this feed.
func (s *Store) Session() string {
	return s.session
}

// Subscribe registers fn to receive a snapshot after every effective change.
func (s *Store) Subscribe(fn func(Snapshot)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Dispatch applies a and reports whether the window changed.
func (s *Store) Dispatch(a Action) bool {
	s.mu.Lock()
	changed := s.applyLocked(a)
	if changed {
		s.version++
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.subMu.Lock()
		subs := slices.Clone(s.subs)
		s.subMu.Unlock()
		for _, fn := range subs {
			fn(snap)
		}
	}
	return changed
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Session:  s.session,
		Version:  s.version,
		Messages: slices.Clone(s.messages),
		HasMore:  s.hasMore,
		Total:    s.total,
		Loaded:   s.loaded,
	}
}

func (s *Store) applyLocked(a Action) bool {
	switch a.Kind {
	case ActionReplace:
		s.messages = s.messages[:0]
		clear(s.index)
		for _, m := range a.Page.Messages {
			s.appendLocked(m)
		}
		s.hasMore = a.Page.HasMore
		s.total = a.Page.Total
		s.loaded = true
		return true

	case ActionPrepend:
		older := make([]models.Message, 0, len(a.Page.Messages))
		seen := make(map[int64]bool, len(a.Page.Messages))
		for _, m := range a.Page.Messages {
			if _, ok := s.index[m.ID]; ok || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			older = append(older, m)
		}
		changed := len(older) > 0 || s.hasMore != a.Page.HasMore
		s.messages = append(older, s.messages...)
		s.reindexLocked()
		s.hasMore = a.Page.HasMore
		if a.Page.Total > 0 {
			s.total = a.Page.Total
		}
		return changed

	case ActionAppend, ActionUpsert:
		changed := false
		for _, m := range a.Messages {
			if i, ok := s.index[m.ID]; ok {
				s.messages[i] = m
			} else {
				s.appendLocked(m)
				if a.Kind == ActionAppend {
					s.total++
				}
			}
			changed = true
		}
		return changed

	case ActionUpdate:
		changed := false
		for _, m := range a.Messages {
			if i, ok := s.index[m.ID]; ok {
				s.messages[i] = m
				changed = true
			}
		}
		return changed

	case ActionRemove:
		i, ok := s.index[a.ID]
		if !ok {
			return false
		}
		s.messages = slices.Delete(s.messages, i, i+1)
		s.reindexLocked()
		if s.total > 0 {
			s.total--
		}
		return true
	}
	return false
}

func (s *Store) appendLocked(m models.Message) {
	if i, ok := s.index[m.ID]; ok {
		s.messages[i] = m
		return
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
}

func (s *Store) reindexLocked() {
	clear(s.index)
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}
