package typing

import (
	"slices"
	"sync"
	"time"
)

type entry struct {
	timer Timer
	gen   uint64
}

// Tracker is the receiver side: the ordered set of users currently typing.
// Entries expire on their own after the contract's Expiry.
type Tracker struct {
	clock    Clock
	expiry   time.Duration
	onChange func(users []int64)

	mu      sync.Mutex
	order   []int64
	entries map[int64]*entry
	gen     uint64
	closed  bool
}

func NewTracker(clock Clock, contract Contract, onChange func(users []int64)) *Tracker {
	if clock == nil {
		clock = RealClock
	}
	return &Tracker{
		clock:    clock,
		expiry:   contract.Expiry(),
		onChange: onChange,
		entries:  make(map[int64]*entry),
	}
}

// Set applies one user-typing event. A typing user is moved to the end of
// the list and its expiry re-armed; typing=false removes it at once.
func (t *Tracker) Set(userID int64, typing bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	changed := t.removeLocked(userID)
	if typing {
		t.gen++
		gen := t.gen
		t.entries[userID] = &entry{
			gen:   gen,
			timer: t.clock.AfterFunc(t.expiry, func() { t.expire(userID, gen) }),
		}
		t.order = append(t.order, userID)
		changed = true
	}
	users := slices.Clone(t.order)
	t.mu.Unlock()

	if changed {
		t.notify(users)
	}
}

// Users returns the typing users in arrival order.
func (t *Tracker) Users() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.order)
}

// Close stops every pending expiry timer.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
	t.order = nil
	t.closed = true
}

func (t *Tracker) expire(userID int64, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[userID]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	t.removeLocked(userID)
	users := slices.Clone(t.order)
	t.mu.Unlock()

	t.notify(users)
}

func (t *Tracker) removeLocked(userID int64) bool {
	e, ok := t.entries[userID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, userID)
	t.order = slices.DeleteFunc(t.order, func(id int64) bool { return id == userID })
	return true
}

func (t *Tracker) notify(users []int64) {
	if t.onChange != nil {
		t.onChange(users)
	}
}
