// Package dispatch provides the single serializing event loop every input
// (sensor samples, screen edges, timer firings, API commands, scan results)
// is funnelled through. Handlers run one at a time to completion, so the
// components they touch need no locking.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/config"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("dispatch loop stopped")

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop cancels the timer. Once Stop returns, the callback will not run,
	// even if its firing was already queued. Reports whether the timer was
	// still pending.
	Stop() bool
}

// Scheduler schedules one-shot callbacks that run on the event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Poster queues work onto the event loop. Safe for concurrent use.
type Poster interface {
	Post(fn func()) bool
	// TryPost queues fn only if that does not block. Lossy producers such
	// as sensor pollers use it so a busy loop never stalls them.
	TryPost(fn func()) bool
}

// Dispatcher is what the core components need from the event loop.
type Dispatcher interface {
	Poster
	Scheduler
}

// Loop is a goroutine draining a queue of closures.
type Loop struct {
	clock  clock.Clock
	events chan func()
	done   chan struct{}
	logger zerolog.Logger
}

// New creates a loop backed by the given clock (clock.New() in production).
func New(clk clock.Clock, logger zerolog.Logger) *Loop {
	return &Loop{
		clock:  clk,
		events: make(chan func(), config.EventQueueSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "dispatch").Logger(),
	}
}

// Run processes events until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	l.logger.Debug().Msg("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug().Msg("Event loop stopped")
			return ctx.Err()
		case fn := <-l.events:
			fn()
		}
	}
}

// Post queues fn. It returns false once the loop has exited. Calling Post
// from inside a handler is allowed; the closure runs after the current one.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// TryPost queues fn without blocking. It returns false when the queue is
// full or the loop has exited.
func (l *Loop) TryPost(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	default:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from a handler running on the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// AfterFunc schedules fn to run on the loop after d. Both AfterFunc and the
// returned timer's Stop must be called from the loop goroutine (or before
// Run starts).
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.done {
				return
			}
			t.done = true
			fn()
		})
	})
	return t
}

// loopTimer's done flag is only touched on the loop goroutine, which is what
// makes Stop synchronous: a firing already sitting in the queue sees done and
// drops itself.
type loopTimer struct {
	timer *clock.Timer
	done  bool
}

func (t *loopTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	t.timer.Stop()
	return true
}
