package screen

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	screenSaverService   = "org.freedesktop.ScreenSaver"
	screenSaverPath      = dbus.ObjectPath("/org/freedesktop/ScreenSaver")
	screenSaverInterface = "org.freedesktop.ScreenSaver"
	activeChangedMember  = "ActiveChanged"
)

// DBusSource follows the freedesktop screensaver: an active screensaver is
// a screen-off edge, deactivation a screen-on edge.
type DBusSource struct {
	conn   *dbus.Conn
	logger zerolog.Logger

	mu      sync.Mutex
	signals chan *dbus.Signal
	done    chan struct{}
}

// NewDBusSource connects to the session bus and checks the screensaver
// service answers.
func NewDBusSource(logger zerolog.Logger) (*DBusSource, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s := &DBusSource{
		conn:   conn,
		logger: logger.With().Str("component", "screen").Str("source", "dbus").Logger(),
	}
	if _, err := s.active(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *DBusSource) active() (bool, error) {
	var active bool
	obj := s.conn.Object(screenSaverService, screenSaverPath)
	if err := obj.Call(screenSaverInterface+".GetActive", 0).Store(&active); err != nil {
		return false, fmt.Errorf("failed to query screensaver: %w", err)
	}
	return active, nil
}

func (s *DBusSource) Subscribe(fn func(bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signals != nil {
		return false, fmt.Errorf("screen source already subscribed")
	}

	if err := s.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(screenSaverPath),
		dbus.WithMatchInterface(screenSaverInterface),
		dbus.WithMatchMember(activeChangedMember),
	); err != nil {
		return false, fmt.Errorf("failed to watch screensaver: %w", err)
	}

	active, err := s.active()
	if err != nil {
		return false, err
	}

	s.signals = make(chan *dbus.Signal, 8)
	s.done = make(chan struct{})
	s.conn.Signal(s.signals)
	go s.loop(fn, s.signals, s.done)

	s.logger.Info().Bool("screen_on", !active).Msg("Watching screensaver")
	return !active, nil
}

func (s *DBusSource) loop(fn func(bool), signals chan *dbus.Signal, done chan struct{}) {
	defer close(done)
	for sig := range signals {
		if sig.Name != screenSaverInterface+"."+activeChangedMember || len(sig.Body) == 0 {
			continue
		}
		active, ok := sig.Body[0].(bool)
		if !ok {
			continue
		}
		s.logger.Debug().Bool("screensaver_active", active).Msg("Screensaver changed")
		fn(!active)
	}
}

func (s *DBusSource) Unsubscribe() {
	s.mu.Lock()
	signals, done := s.signals, s.done
	s.signals, s.done = nil, nil
	s.mu.Unlock()

	if signals == nil {
		return
	}
	_ = s.conn.RemoveMatchSignal(
		dbus.WithMatchObjectPath(screenSaverPath),
		dbus.WithMatchInterface(screenSaverInterface),
		dbus.WithMatchMember(activeChangedMember),
	)
	s.conn.RemoveSignal(signals)
	close(signals)
	<-done
}

// Close unsubscribes and closes the bus connection.
func (s *DBusSource) Close() error {
	s.Unsubscribe()
	return s.conn.Close()
}
