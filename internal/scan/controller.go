package scan

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/dispatch"
	"ble-pacer.klederson.com/internal/metrics"
	"ble-pacer.klederson.com/internal/motion"
)

// MotionSource delivers motion edges to a listener on the dispatch loop.
type MotionSource interface {
	Register(l motion.Listener) error
	Unregister()
}

// ScreenSource delivers screen on/off edges. Subscribe returns the current
// state; fn may be called from any goroutine.
type ScreenSource interface {
	Subscribe(fn func(on bool)) (bool, error)
	Unsubscribe()
}

// Config tunes the controller.
type Config struct {
	IdleTimeout time.Duration
}

// Session is one registered scan request.
type Session struct {
	ID       string
	Name     string
	key      *Settings
	current  *Settings
	filters  []Filter
	callback Callback
	running  bool
	since    time.Time
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Mode         string    `json:"mode"`
	CallbackType string    `json:"callback_type"`
	ResultType   string    `json:"result_type"`
	ReportDelay  string    `json:"report_delay,omitempty"`
	Filters      []Filter  `json:"filters,omitempty"`
	Running      bool      `json:"running"`
	Since        time.Time `json:"since"`
}

// Status is a snapshot of the controller.
type Status struct {
	State          State      `json:"state"`
	InMotion       bool       `json:"in_motion"`
	ScreenOn       bool       `json:"screen_on"`
	IdleDeadline   *time.Time `json:"idle_deadline,omitempty"`
	Sessions       int        `json:"sessions"`
	LastTransition time.Time  `json:"last_transition"`
	Shutdown       bool       `json:"shutdown"`
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Controller is the scan-mode scheduler. Every method except NewController
// must run on the dispatch loop.
type Controller struct {
	transport  Transport
	motion     MotionSource
	screen     ScreenSource
	dispatcher dispatch.Dispatcher
	idleAfter  time.Duration
	logger     zerolog.Logger

	state          State
	inMotion       bool
	screenOn       bool
	idle           dispatch.Timer
	idleDeadline   time.Time
	lastTransition time.Time
	shutdown       bool

	sessions  map[*Settings]*Session
	order     []*Settings
	observers []func(Status)
}

// NewController wires the controller to its inputs and evaluates the
// initial state. Either source may be nil. It must be called before the
// dispatch loop starts or from a closure running on it.
func NewController(t Transport, ms MotionSource, ss ScreenSource, d dispatch.Dispatcher, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultIdleTimeout
	}

	c := &Controller{
		transport:  t,
		motion:     ms,
		screen:     ss,
		dispatcher: d,
		idleAfter:  cfg.IdleTimeout,
		logger:     logger.With().Str("component", "controller").Logger(),
		state:      NoScan,
		sessions:   make(map[*Settings]*Session),
	}

	if ss != nil {
		on, err := ss.Subscribe(c.postScreen)
		if err != nil {
			return nil, err
		}
		c.screenOn = on
	}
	if ms != nil {
		if err := ms.Register(c); err != nil {
			if ss != nil {
				ss.Unsubscribe()
			}
			return nil, err
		}
	}

	c.lastTransition = d.Now()
	metrics.ControllerState.Set(float64(c.state))
	c.evaluate()
	return c, nil
}

// HandleEvent applies one event and re-evaluates the state.
func (c *Controller) HandleEvent(e Event) {
	if c.shutdown {
		return
	}
	metrics.ControllerEvents.WithLabelValues(e.String()).Inc()

	switch e {
	case EventScreenOn:
		c.screenOn = true
	case EventScreenOff:
		c.screenOn = false
		// Start the countdown before evaluating so every screen-off passes
		// through SlowScan.
		c.startIdle()
	case EventMotionStarted:
		c.inMotion = true
	case EventMotionTimedOut:
		c.inMotion = false
		c.startIdle()
	case EventIdleTimerFired:
		c.stopIdle()
	}

	c.logger.Debug().
		Stringer("event", e).
		Bool("motion", c.inMotion).
		Bool("screen", c.screenOn).
		Bool("idle_countdown", c.idle != nil).
		Msg("Evaluating scan state")

	c.evaluate()
	c.notify()
}

// OnMotion implements motion.Listener.
func (c *Controller) OnMotion() { c.HandleEvent(EventMotionStarted) }

// OnMotionTimeout implements motion.Listener.
func (c *Controller) OnMotionTimeout() { c.HandleEvent(EventMotionTimedOut) }

// StartScan registers an unnamed session. See StartNamedScan.
func (c *Controller) StartScan(settings *Settings, filters []Filter, cb Callback) bool {
	return c.StartNamedScan("", settings, filters, cb)
}

// StartNamedScan registers a session keyed by the settings pointer,
// replacing any session already registered under it. The session starts
// immediately unless the controller is in NoScan. The result reports
// whether the transport accepted the start; registration itself succeeds
// for any non-nil settings and callback.
func (c *Controller) StartNamedScan(name string, settings *Settings, filters []Filter, cb Callback) bool {
	if c.shutdown || settings == nil || cb == nil {
		return false
	}

	if existing, ok := c.sessions[settings]; ok {
		c.remove(existing)
	}

	sess := &Session{
		ID:       uuid.NewString(),
		Name:     name,
		key:      settings,
		current:  settings,
		filters:  filters,
		callback: cb,
		since:    c.dispatcher.Now(),
	}
	c.sessions[settings] = sess
	c.order = append(c.order, settings)
	metrics.ActiveSessions.Set(float64(len(c.sessions)))

	c.logger.Info().
		Str("session", sess.ID).
		Str("name", name).
		Stringer("state", c.state).
		Msg("Scan session registered")

	ok := true
	if c.state != NoScan {
		ok = c.start(sess, c.state.Mode())
	}
	c.notify()
	return ok
}

// StopScan stops and removes the session registered under settings.
func (c *Controller) StopScan(settings *Settings) error {
	sess, ok := c.sessions[settings]
	if !ok {
		return &UnknownSessionError{Settings: settings}
	}
	c.remove(sess)
	c.logger.Info().Str("session", sess.ID).Str("name", sess.Name).Msg("Scan session removed")
	c.notify()
	return nil
}

// Lookup finds the settings key of a session by ID.
func (c *Controller) Lookup(id string) (*Settings, bool) {
	for _, key := range c.order {
		if c.sessions[key].ID == id {
			return key, true
		}
	}
	return nil, false
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// SessionCount returns the number of registered sessions.
func (c *Controller) SessionCount() int { return len(c.sessions) }

// Transport returns the transport sessions are started on.
func (c *Controller) Transport() Transport { return c.transport }

// Status returns a snapshot for observers.
func (c *Controller) Status() Status {
	st := Status{
		State:          c.state,
		InMotion:       c.inMotion,
		ScreenOn:       c.screenOn,
		Sessions:       len(c.sessions),
		LastTransition: c.lastTransition,
		Shutdown:       c.shutdown,
	}
	if c.idle != nil {
		deadline := c.idleDeadline
		st.IdleDeadline = &deadline
	}
	return st
}

// Sessions returns snapshots of every session in registration order.
func (c *Controller) Sessions() []SessionInfo {
	out := make([]SessionInfo, 0, len(c.order))
	for _, key := range c.order {
		s := c.sessions[key]
		info := SessionInfo{
			ID:           s.ID,
			Name:         s.Name,
			Mode:         s.current.Mode.String(),
			CallbackType: s.current.CallbackType.String(),
			ResultType:   s.current.ResultType.String(),
			Filters:      s.filters,
			Running:      s.running,
			Since:        s.since,
		}
		if s.current.ReportDelay > 0 {
			info.ReportDelay = s.current.ReportDelay.String()
		}
		out = append(out, info)
	}
	return out
}

// AddObserver registers fn to receive a status snapshot after every event
// and registry change. fn runs on the dispatch loop and must not block.
func (c *Controller) AddObserver(fn func(Status)) {
	c.observers = append(c.observers, fn)
}

// Shutdown detaches from the screen and motion sources, cancels the idle
// countdown and stops every running session. Registered sessions stay in
// the registry so StopScan keeps working. Idempotent.
func (c *Controller) Shutdown() {
	if c.shutdown {
		return
	}
	c.shutdown = true

	if c.screen != nil {
		c.screen.Unsubscribe()
	}
	if c.motion != nil {
		c.motion.Unregister()
	}
	c.stopIdle()

	for _, key := range c.order {
		c.stop(c.sessions[key])
	}

	if c.state != NoScan {
		c.setState(NoScan)
	}
	c.logger.Info().Int("sessions", len(c.sessions)).Msg("Scan controller shut down")
	c.notify()
}

func (c *Controller) evaluate() {
	var target State
	switch {
	case c.inMotion || c.screenOn:
		target = FastScan
	case c.idle != nil:
		target = SlowScan
	default:
		target = NoScan
	}

	if target == c.state {
		c.logger.Debug().Stringer("state", c.state).Msg("State not changed")
		return
	}

	c.setState(target)

	// Stop-then-start per session, in registration order.
	for _, key := range c.order {
		sess := c.sessions[key]
		c.stop(sess)
		if target != NoScan {
			c.start(sess, target.Mode())
		}
	}
}

func (c *Controller) setState(target State) {
	from := c.state
	c.state = target
	c.lastTransition = c.dispatcher.Now()

	metrics.ControllerState.Set(float64(target))
	metrics.StateTransitions.WithLabelValues(from.String(), target.String()).Inc()
	c.logger.Info().
		Stringer("from", from).
		Stringer("to", target).
		Int("sessions", len(c.sessions)).
		Msg("Scan state changed")
}

func (c *Controller) start(sess *Session, m Mode) bool {
	sess.current = sess.current.WithMode(m)
	ok := c.transport.StartScan(sess.filters, sess.current, sess.callback)
	// The session counts as running even if the transport refused it, so
	// the next transition still issues the matching stop.
	sess.running = true
	if !ok {
		metrics.TransportFailures.WithLabelValues("start").Inc()
		c.logger.Warn().
			Str("session", sess.ID).
			Stringer("mode", m).
			Msg("Transport refused to start scan")
	}
	return ok
}

func (c *Controller) stop(sess *Session) {
	if !sess.running {
		return
	}
	c.transport.StopScan(sess.callback)
	sess.running = false
}

func (c *Controller) remove(sess *Session) {
	c.stop(sess)
	delete(c.sessions, sess.key)
	for i, key := range c.order {
		if key == sess.key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	metrics.ActiveSessions.Set(float64(len(c.sessions)))
}

func (c *Controller) startIdle() {
	c.stopIdle()
	c.idleDeadline = c.dispatcher.Now().Add(c.idleAfter)
	c.idle = c.dispatcher.AfterFunc(c.idleAfter, c.onIdleTimer)
}

func (c *Controller) stopIdle() {
	if c.idle != nil {
		c.idle.Stop()
		c.idle = nil
		c.idleDeadline = time.Time{}
	}
}

func (c *Controller) onIdleTimer() {
	c.logger.Debug().Msg("Idle countdown expired")
	c.HandleEvent(EventIdleTimerFired)
}

func (c *Controller) postScreen(on bool) {
	c.dispatcher.Post(func() {
		if on {
			c.HandleEvent(EventScreenOn)
		} else {
			c.HandleEvent(EventScreenOff)
		}
	})
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	st := c.Status()
	for _, fn := range c.observers {
		fn(st)
	}
}
