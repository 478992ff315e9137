// Package typing holds the typing-indicator TTL contract shared by the
// sender (auto-stop) and the receiver (expiry) sides.
package typing

import (
	"sync"
	"time"
)

const (
	DefaultTTL   = 3 * time.Second
	DefaultGrace = 2 * time.Second
)

// Contract is the single typing timeout both sides agree on.
// The sender stops after TTL, receivers drop an entry after TTL+Grace,
// so a lost typing-stop is still cleared.
type Contract struct {
	TTL   time.Duration
	Grace time.Duration
}

func DefaultContract() Contract {
	return Contract{TTL: DefaultTTL, Grace: DefaultGrace}
}

// Expiry is how long a receiver keeps a typing entry without a refresh.
func (c Contract) Expiry() time.Duration {
	return c.TTL + c.Grace
}

type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests swap it for a manual one.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

// Debouncer is the sender side: Start arms (or refreshes) the auto-stop
// timer, onStop runs once when it elapses without a refresh.
type Debouncer struct {
	clock  Clock
	ttl    time.Duration
	onStop func()

	mu     sync.Mutex
	timer  Timer
	gen    uint64
	active bool
}

func NewDebouncer(clock Clock, ttl time.Duration, onStop func()) *Debouncer {
	if clock == nil {
		clock = RealClock
	}
	return &Debouncer{
		clock:  clock,
		ttl:    ttl,
		onStop: onStop,
	}
}

// Start re-arms the timer. It reports whether typing was idle before.
func (d *Debouncer) Start() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasIdle := !d.active
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.active = true
	d.timer = d.clock.AfterFunc(d.ttl, func() { d.expire(gen) })
	return wasIdle
}

// Stop clears a pending timer without firing onStop. It reports whether
// typing was active.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasActive := d.active
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.active = false
	return wasActive
}

func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	if d.onStop != nil {
		d.onStop()
	}
}
