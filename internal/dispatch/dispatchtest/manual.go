// Package dispatchtest provides a deterministic, single-goroutine dispatcher
// for exercising event-driven components without a real loop or clock.
package dispatchtest

import (
	"sort"
	"time"

	"ble-pacer.klederson.com/internal/dispatch"
)

// Manual runs posted closures inline (queued if one is already running) and
// fires timers only when Advance moves its virtual clock past them.
type Manual struct {
	now      time.Time
	queue    []func()
	draining bool
	timers   []*manualTimer
	seq      int
}

var _ dispatch.Dispatcher = (*Manual)(nil)

// NewManual creates a dispatcher whose clock starts at a fixed instant.
func NewManual() *Manual {
	return &Manual{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Post runs fn, after any closure currently executing.
func (m *Manual) Post(fn func()) bool {
	m.queue = append(m.queue, fn)
	if m.draining {
		return true
	}
	m.draining = true
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		next()
	}
	m.draining = false
	return true
}

// TryPost behaves like Post; the manual queue is unbounded.
func (m *Manual) TryPost(fn func()) bool {
	return m.Post(fn)
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// AfterFunc registers fn to fire once Advance reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) dispatch.Timer {
	t := &manualTimer{owner: m, when: m.now.Add(d), fn: fn, seq: m.seq}
	m.seq++
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in deadline order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		due := m.nextDue(target)
		if due == nil {
			break
		}
		m.now = due.when
		m.remove(due)
		due.fired = true
		m.Post(due.fn)
	}
	m.now = target
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	return len(m.timers)
}

// NextDeadline returns the earliest pending deadline.
func (m *Manual) NextDeadline() (time.Time, bool) {
	if len(m.timers) == 0 {
		return time.Time{}, false
	}
	m.sortTimers()
	return m.timers[0].when, true
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	m.sortTimers()
	if m.timers[0].when.After(target) {
		return nil
	}
	return m.timers[0]
}

func (m *Manual) sortTimers() {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
}

func (m *Manual) remove(t *manualTimer) {
	for i, cur := range m.timers {
		if cur == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	owner   *Manual
	when    time.Time
	fn      func()
	seq     int
	fired   bool
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	t.owner.remove(t)
	return true
}
