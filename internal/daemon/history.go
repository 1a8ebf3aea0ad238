package daemon

import (
	"time"

	"ble-pacer.klederson.com/internal/scan"
)

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// State aliases the controller state for JSON and display.
type State = scan.State

// TransitionRing is a circular buffer of the most recent transitions.
type TransitionRing struct {
	buf   []Transition
	pos   int
	count int
}

// NewTransitionRing creates a new circular buffer with the given capacity.
func NewTransitionRing(capacity int) *TransitionRing {
	return &TransitionRing{
		buf: make([]Transition, capacity),
	}
}

// Push adds a transition to the ring buffer.
func (r *TransitionRing) Push(t Transition) {
	r.buf[r.pos] = t
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Values returns all stored transitions in chronological order.
func (r *TransitionRing) Values() []Transition {
	if r.count == 0 {
		return nil
	}
	result := make([]Transition, r.count)
	if r.count < len(r.buf) {
		copy(result, r.buf[:r.count])
	} else {
		start := r.pos
		n := copy(result, r.buf[start:])
		copy(result[n:], r.buf[:start])
	}
	return result
}

// Last returns the most recent transition.
func (r *TransitionRing) Last() (Transition, bool) {
	if r.count == 0 {
		return Transition{}, false
	}
	idx := (r.pos - 1 + len(r.buf)) % len(r.buf)
	return r.buf[idx], true
}

// Len returns the number of stored transitions.
func (r *TransitionRing) Len() int {
	return r.count
}
