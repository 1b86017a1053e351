package sandbox

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Timers implements setTimeout / setInterval for a window on top of the
// loop's event loop timers. Callbacks run on the loop goroutine, never on
// the caller's.
type Timers struct {
	policy TimerPolicy
	loop   *Loop

	mu      sync.Mutex
	nextID  int
	active  map[int]func()
	stopped bool
}

func newTimers(policy TimerPolicy, loop *Loop) *Timers {
	return &Timers{
		policy: policy,
		loop:   loop,
		active: make(map[int]func()),
	}
}

// Policy returns the policy applied to new timers.
func (t *Timers) Policy() TimerPolicy {
	return t.policy
}

// SetTimeout schedules fn once after delay, as adjusted by the timer policy.
// It returns an id for ClearTimeout, or 0 when the timers were stopped.
func (t *Timers) SetTimeout(fn func(), delay time.Duration) int {
	return t.schedule(fn, t.policy.Timeout(delay), false)
}

// SetInterval schedules fn repeatedly, as adjusted by the timer policy.
func (t *Timers) SetInterval(fn func(), delay time.Duration) int {
	d, repeat := t.policy.Interval(delay)
	return t.schedule(fn, d, repeat)
}

// ClearTimeout cancels a timer. Unknown ids are ignored.
func (t *Timers) ClearTimeout(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.active[id]; ok {
		cancel()
		delete(t.active, id)
	}
}

// ClearInterval cancels an interval. It is an alias of ClearTimeout, like in browsers.
func (t *Timers) ClearInterval(id int) {
	t.ClearTimeout(id)
}

// Pending returns the number of timers that have not fired or been cleared.
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// StopAll cancels every timer and refuses new ones.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, cancel := range t.active {
		cancel()
		delete(t.active, id)
	}
}

func (t *Timers) schedule(fn func(), d time.Duration, repeat bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.loop.Halted() {
		return 0
	}
	t.nextID++
	id := t.nextID
	events := t.loop.events

	if repeat {
		iv := events.SetInterval(func(*goja.Runtime) { t.fire(id, fn, true) }, d)
		if iv == nil {
			return 0
		}
		t.active[id] = func() { events.ClearInterval(iv) }
		return id
	}
	tm := events.SetTimeout(func(*goja.Runtime) { t.fire(id, fn, false) }, d)
	if tm == nil {
		return 0
	}
	t.active[id] = func() { events.ClearTimeout(tm) }
	return id
}

// fire runs on the loop goroutine. The cleared check happens here so a timer
// cleared after the event loop queued it never runs.
func (t *Timers) fire(id int, fn func(), repeat bool) {
	t.mu.Lock()
	if _, ok := t.active[id]; !ok || t.stopped {
		t.mu.Unlock()
		return
	}
	if !repeat {
		delete(t.active, id)
	}
	t.mu.Unlock()

	t.loop.exec(fn)
}
