// Package screen delivers screen on/off edges.
package screen

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Source delivers screen on/off edges. Subscribe returns the current state;
// fn may run on any goroutine.
type Source interface {
	Subscribe(fn func(on bool)) (bool, error)
	Unsubscribe()
}

// Manual is a screen toggled by hand (dashboard, HTTP API, demo mode).
type Manual struct {
	mu sync.Mutex
	on bool
	fn func(bool)
}

// NewManual creates a manual source in the given state.
func NewManual(on bool) *Manual {
	return &Manual{on: on}
}

func (m *Manual) Subscribe(fn func(bool)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m.on, nil
}

func (m *Manual) Unsubscribe() {
	m.mu.Lock()
	m.fn = nil
	m.mu.Unlock()
}

// Set changes the state, emitting an edge only when it differs.
func (m *Manual) Set(on bool) {
	m.mu.Lock()
	changed := m.on != on
	m.on = on
	fn := m.fn
	m.mu.Unlock()

	if changed && fn != nil {
		fn(on)
	}
}

// Toggle flips the state and returns the new one.
func (m *Manual) Toggle() bool {
	m.mu.Lock()
	on := !m.on
	m.mu.Unlock()
	m.Set(on)
	return on
}

// State returns the current state.
func (m *Manual) State() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Static reports a fixed state and never emits edges.
type Static bool

func (s Static) Subscribe(func(bool)) (bool, error) { return bool(s), nil }
func (s Static) Unsubscribe()                       {}

// ParseState accepts on/off style strings.
func ParseState(s string) (bool, error) {
	switch s {
	case "on", "true", "1", "":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid screen state %q", s)
}

// Open resolves the configured screen source. "auto" tries the desktop
// screensaver over D-Bus and falls back to a manual source.
func Open(kind string, initial bool, logger zerolog.Logger) (Source, error) {
	switch kind {
	case "manual":
		return NewManual(initial), nil
	case "dbus":
		return NewDBusSource(logger)
	case "", "auto":
		src, err := NewDBusSource(logger)
		if err == nil {
			return src, nil
		}
		logger.Info().Err(err).Msg("No screensaver on the session bus, using manual screen source")
		return NewManual(initial), nil
	default:
		return nil, fmt.Errorf("unknown screen source %q", kind)
	}
}
