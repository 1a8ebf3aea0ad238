package scan

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-pacer.klederson.com/internal/dispatch/dispatchtest"
	"ble-pacer.klederson.com/internal/motion"
)

type call struct {
	op       string
	callback Callback
	settings *Settings
}

type fakeTransport struct {
	calls   []call
	refuse  bool
	running map[Callback]*Settings
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{running: make(map[Callback]*Settings)}
}

func (t *fakeTransport) StartScan(filters []Filter, s *Settings, cb Callback) bool {
	t.calls = append(t.calls, call{op: "start", callback: cb, settings: s})
	if t.refuse {
		return false
	}
	t.running[cb] = s
	return true
}

func (t *fakeTransport) StopScan(cb Callback) {
	t.calls = append(t.calls, call{op: "stop", callback: cb})
	delete(t.running, cb)
}

func (t *fakeTransport) callsFor(cb Callback) []call {
	var out []call
	for _, c := range t.calls {
		if c.callback == cb {
			out = append(out, c)
		}
	}
	return out
}

func (t *fakeTransport) reset() { t.calls = nil }

type nopCallback struct{ name string }

func (*nopCallback) OnScanResult(Result) {}
func (*nopCallback) OnScanFailed(error)  {}

type fakeScreen struct {
	initial      bool
	fn           func(bool)
	err          error
	unsubscribed int
}

func (s *fakeScreen) Subscribe(fn func(bool)) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.fn = fn
	return s.initial, nil
}

func (s *fakeScreen) Unsubscribe() {
	s.fn = nil
	s.unsubscribed++
}

type fakeMotion struct {
	listener     motion.Listener
	err          error
	unregistered int
}

func (m *fakeMotion) Register(l motion.Listener) error {
	if m.err != nil {
		return m.err
	}
	m.listener = l
	return nil
}

func (m *fakeMotion) Unregister() {
	m.listener = nil
	m.unregistered++
}

type harness struct {
	c         *Controller
	transport *fakeTransport
	screen    *fakeScreen
	motion    *fakeMotion
	loop      *dispatchtest.Manual
}

func newHarness(t *testing.T, screenOn bool) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(),
		screen:    &fakeScreen{initial: screenOn},
		motion:    &fakeMotion{},
		loop:      dispatchtest.NewManual(),
	}
	c, err := NewController(h.transport, h.motion, h.screen, h.loop, Config{IdleTimeout: 20 * time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	h.c = c
	return h
}

func TestInitialStateFollowsScreen(t *testing.T) {
	assert.Equal(t, NoScan, newHarness(t, false).c.State())
	assert.Equal(t, FastScan, newHarness(t, true).c.State())
}

func TestNewControllerRegistersAsMotionListener(t *testing.T) {
	h := newHarness(t, false)
	assert.Same(t, h.c, h.motion.listener)
	assert.NotNil(t, h.screen.fn)
}

func TestNewControllerSubscriptionErrors(t *testing.T) {
	screenErr := errors.New("no session bus")
	_, err := NewController(newFakeTransport(), nil, &fakeScreen{err: screenErr}, dispatchtest.NewManual(), Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, screenErr)

	motionErr := errors.New("sensor busy")
	screen := &fakeScreen{}
	_, err = NewController(newFakeTransport(), &fakeMotion{err: motionErr}, screen, dispatchtest.NewManual(), Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, motionErr)
	assert.Equal(t, 1, screen.unsubscribed)
}

func TestNilSourcesAreAllowed(t *testing.T) {
	c, err := NewController(newFakeTransport(), nil, nil, dispatchtest.NewManual(), Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, NoScan, c.State())
	c.Shutdown()
}

// Scenario 1
func TestScreenOffEntersSlowScan(t *testing.T) {
	h := newHarness(t, false)

	h.c.HandleEvent(EventScreenOff)
	assert.Equal(t, SlowScan, h.c.State())
	assert.NotNil(t, h.c.Status().IdleDeadline)
}

// Scenario 2
func TestIdleTimerStopsAllSessions(t *testing.T) {
	h := newHarness(t, false)
	cbA, cbB := &nopCallback{"a"}, &nopCallback{"b"}
	h.c.HandleEvent(EventScreenOff)
	require.True(t, h.c.StartScan(&Settings{}, nil, cbA))
	require.True(t, h.c.StartScan(&Settings{}, nil, cbB))
	h.transport.reset()

	h.loop.Advance(20 * time.Minute)

	assert.Equal(t, NoScan, h.c.State())
	assert.Equal(t, []call{
		{op: "stop", callback: cbA},
		{op: "stop", callback: cbB},
	}, h.transport.calls)
	assert.Empty(t, h.transport.running)
	assert.Equal(t, 2, h.c.SessionCount())
	assert.Nil(t, h.c.Status().IdleDeadline)
}

// Scenario 3
func TestSessionRegisteredInNoScanStartsOnScreenOn(t *testing.T) {
	h := newHarness(t, false)
	cb := &nopCallback{}
	settings := &Settings{CallbackType: CallbackFirstMatch}

	require.True(t, h.c.StartScan(settings, nil, cb))
	assert.Empty(t, h.transport.calls, "not started while in NoScan")

	h.c.HandleEvent(EventScreenOn)

	assert.Equal(t, FastScan, h.c.State())
	calls := h.transport.callsFor(cb)
	require.Len(t, calls, 1)
	assert.Equal(t, "start", calls[0].op)
	assert.Equal(t, ModeLowLatency, calls[0].settings.Mode)
	assert.Equal(t, CallbackFirstMatch, calls[0].settings.CallbackType)
}

// Scenario 4
func TestMotionRestartsRunningSessionOnce(t *testing.T) {
	h := newHarness(t, false)
	h.c.HandleEvent(EventScreenOff)
	require.Equal(t, SlowScan, h.c.State())

	cb := &nopCallback{}
	settings := &Settings{
		Mode:         ModeBalanced,
		CallbackType: CallbackFirstMatch,
		ResultType:   ResultAbbreviated,
		ReportDelay:  3 * time.Second,
	}
	require.True(t, h.c.StartScan(settings, nil, cb))
	require.Equal(t, ModeLowPower, h.transport.running[cb].Mode)
	h.transport.reset()

	h.motion.listener.OnMotion()

	assert.Equal(t, FastScan, h.c.State())
	calls := h.transport.callsFor(cb)
	require.Len(t, calls, 2)
	assert.Equal(t, "stop", calls[0].op)
	assert.Equal(t, "start", calls[1].op)
	assert.Equal(t, &Settings{
		Mode:         ModeLowLatency,
		CallbackType: CallbackFirstMatch,
		ResultType:   ResultAbbreviated,
		ReportDelay:  3 * time.Second,
	}, calls[1].settings)
	assert.Equal(t, ModeBalanced, settings.Mode, "caller's settings are never mutated")
}

// Scenario 5
func TestStopUnknownSession(t *testing.T) {
	h := newHarness(t, false)

	err := h.c.StopScan(&Settings{})
	assert.ErrorIs(t, err, ErrUnknownSession)
	var unknown *UnknownSessionError
	assert.ErrorAs(t, err, &unknown)

	assert.ErrorIs(t, h.c.StopScan(nil), ErrUnknownSession)
}

func TestRepeatedScreenOnIsNoop(t *testing.T) {
	h := newHarness(t, false)
	cb := &nopCallback{}
	h.c.StartScan(&Settings{}, nil, cb)

	h.c.HandleEvent(EventScreenOn)
	h.transport.reset()
	h.c.HandleEvent(EventScreenOn)

	assert.Equal(t, FastScan, h.c.State())
	assert.Empty(t, h.transport.calls)
}

func TestMotionOrScreenImpliesFastScan(t *testing.T) {
	events := []Event{EventScreenOn, EventScreenOff, EventMotionStarted, EventMotionTimedOut, EventIdleTimerFired}

	// Every ordered pair and triple of events from a fresh controller.
	var walk func(prefix []Event, depth int)
	walk = func(prefix []Event, depth int) {
		if depth == 0 {
			return
		}
		for _, e := range events {
			seq := append(append([]Event{}, prefix...), e)
			t.Run(fmt.Sprint(seq), func(t *testing.T) {
				h := newHarness(t, false)
				for _, ev := range seq {
					h.c.HandleEvent(ev)
				}
				st := h.c.Status()
				if st.InMotion || st.ScreenOn {
					assert.Equal(t, FastScan, st.State)
				}
			})
			walk(seq, depth-1)
		}
	}
	walk(nil, 3)
}

func TestMotionTimeoutStartsCountdown(t *testing.T) {
	h := newHarness(t, false)

	h.c.HandleEvent(EventMotionStarted)
	assert.Equal(t, FastScan, h.c.State())

	h.c.HandleEvent(EventMotionTimedOut)
	assert.Equal(t, SlowScan, h.c.State())

	h.loop.Advance(19 * time.Minute)
	assert.Equal(t, SlowScan, h.c.State())
	h.loop.Advance(time.Minute)
	assert.Equal(t, NoScan, h.c.State())
}

func TestIdleCountdownIsReplacedNotAccumulated(t *testing.T) {
	h := newHarness(t, false)

	h.c.HandleEvent(EventScreenOff)
	h.loop.Advance(15 * time.Minute)
	h.c.HandleEvent(EventScreenOff)
	assert.Equal(t, 1, h.loop.Pending())

	h.loop.Advance(10 * time.Minute)
	assert.Equal(t, SlowScan, h.c.State(), "first countdown was cancelled")

	h.loop.Advance(10 * time.Minute)
	assert.Equal(t, NoScan, h.c.State())
	assert.Equal(t, 0, h.loop.Pending())
}

func TestIdleTimerWhileScreenOnStaysFast(t *testing.T) {
	h := newHarness(t, false)
	h.c.HandleEvent(EventScreenOff)
	h.c.HandleEvent(EventScreenOn)

	h.loop.Advance(20 * time.Minute)
	assert.Equal(t, FastScan, h.c.State())

	h.c.HandleEvent(EventScreenOff)
	assert.Equal(t, SlowScan, h.c.State())
}

func TestInjectedIdleEventCancelsCountdown(t *testing.T) {
	h := newHarness(t, false)
	h.c.HandleEvent(EventScreenOff)

	h.c.HandleEvent(EventIdleTimerFired)
	assert.Equal(t, NoScan, h.c.State())
	assert.Equal(t, 0, h.loop.Pending())
}

func TestStartScanInActiveStateStartsImmediately(t *testing.T) {
	h := newHarness(t, true)
	cb := &nopCallback{}
	settings := &Settings{Mode: ModeLowLatency}

	assert.True(t, h.c.StartScan(settings, nil, cb))
	calls := h.transport.callsFor(cb)
	require.Len(t, calls, 1)
	assert.Same(t, settings, calls[0].settings, "matching mode reuses the caller's settings")
}

func TestStartScanReportsTransportFailure(t *testing.T) {
	h := newHarness(t, true)
	h.transport.refuse = true
	cb := &nopCallback{}

	assert.False(t, h.c.StartScan(&Settings{}, nil, cb))
	assert.Equal(t, 1, h.c.SessionCount(), "registered regardless of transport result")

	h.transport.refuse = false
	h.transport.reset()
	h.c.HandleEvent(EventScreenOff)
	assert.Equal(t, []string{"stop", "start"}, ops(h.transport.callsFor(cb)))
}

func TestReRegistrationReplacesSession(t *testing.T) {
	h := newHarness(t, true)
	settings := &Settings{}
	first, second := &nopCallback{"first"}, &nopCallback{"second"}

	h.c.StartScan(settings, nil, first)
	h.transport.reset()
	h.c.StartScan(settings, nil, second)

	assert.Equal(t, 1, h.c.SessionCount())
	assert.Equal(t, []call{
		{op: "stop", callback: first},
		{op: "start", callback: second, settings: h.transport.calls[1].settings},
	}, h.transport.calls)
}

func TestStopScanRemovesSession(t *testing.T) {
	h := newHarness(t, true)
	settings := &Settings{}
	cb := &nopCallback{}
	h.c.StartScan(settings, nil, cb)
	h.transport.reset()

	require.NoError(t, h.c.StopScan(settings))
	assert.Equal(t, 0, h.c.SessionCount())
	assert.Equal(t, []string{"stop"}, ops(h.transport.calls))
	assert.ErrorIs(t, h.c.StopScan(settings), ErrUnknownSession)
}

func TestStopScanOfIdleSessionSkipsTransport(t *testing.T) {
	h := newHarness(t, false)
	settings := &Settings{}
	h.c.StartScan(settings, nil, &nopCallback{})

	require.NoError(t, h.c.StopScan(settings))
	assert.Empty(t, h.transport.calls)
}

func TestSessionsAreRestartedInRegistrationOrder(t *testing.T) {
	h := newHarness(t, false)
	cbs := []*nopCallback{{"a"}, {"b"}, {"c"}}
	for _, cb := range cbs {
		h.c.StartScan(&Settings{}, nil, cb)
	}
	h.c.HandleEvent(EventScreenOff)
	h.transport.reset()

	h.c.HandleEvent(EventScreenOn)

	require.Len(t, h.transport.calls, 6)
	for i, cb := range cbs {
		assert.Equal(t, "stop", h.transport.calls[2*i].op)
		assert.Same(t, cb, h.transport.calls[2*i].callback)
		assert.Equal(t, "start", h.transport.calls[2*i+1].op)
		assert.Same(t, cb, h.transport.calls[2*i+1].callback)
	}
}

func TestSessionModesTrackState(t *testing.T) {
	h := newHarness(t, false)
	h.c.StartNamedScan("beacons", &Settings{}, nil, &nopCallback{})

	h.c.HandleEvent(EventScreenOff)
	assert.Equal(t, "low-power", h.c.Sessions()[0].Mode)
	h.c.HandleEvent(EventMotionStarted)
	assert.Equal(t, "low-latency", h.c.Sessions()[0].Mode)
	assert.Equal(t, "beacons", h.c.Sessions()[0].Name)
	assert.True(t, h.c.Sessions()[0].Running)
}

func TestLookupByID(t *testing.T) {
	h := newHarness(t, false)
	settings := &Settings{}
	h.c.StartScan(settings, nil, &nopCallback{})

	key, ok := h.c.Lookup(h.c.Sessions()[0].ID)
	assert.True(t, ok)
	assert.Same(t, settings, key)

	_, ok = h.c.Lookup("nope")
	assert.False(t, ok)
}

func TestStartScanRejectsNil(t *testing.T) {
	h := newHarness(t, true)
	assert.False(t, h.c.StartScan(nil, nil, &nopCallback{}))
	assert.False(t, h.c.StartScan(&Settings{}, nil, nil))
	assert.Equal(t, 0, h.c.SessionCount())
}

func TestScreenSourceEdgesArePosted(t *testing.T) {
	h := newHarness(t, false)

	h.screen.fn(true)
	assert.Equal(t, FastScan, h.c.State())
	h.screen.fn(false)
	assert.Equal(t, SlowScan, h.c.State())
}

func TestObserversSeeEveryChange(t *testing.T) {
	h := newHarness(t, false)
	var seen []State
	h.c.AddObserver(func(s Status) { seen = append(seen, s.State) })

	h.c.HandleEvent(EventScreenOff)
	h.c.StartScan(&Settings{}, nil, &nopCallback{})
	h.c.HandleEvent(EventScreenOn)

	assert.Equal(t, []State{SlowScan, SlowScan, FastScan}, seen)
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, false)
	settings := &Settings{}
	cb := &nopCallback{}
	h.c.HandleEvent(EventScreenOff)
	h.c.StartScan(settings, nil, cb)
	h.transport.reset()

	h.c.Shutdown()
	h.c.Shutdown()

	assert.Equal(t, NoScan, h.c.State())
	assert.Equal(t, []string{"stop"}, ops(h.transport.calls))
	assert.Equal(t, 1, h.screen.unsubscribed)
	assert.Equal(t, 1, h.motion.unregistered)
	assert.Equal(t, 0, h.loop.Pending())
	assert.True(t, h.c.Status().Shutdown)

	h.c.HandleEvent(EventScreenOn)
	assert.Equal(t, NoScan, h.c.State())
	assert.False(t, h.c.StartScan(&Settings{}, nil, cb))

	h.transport.reset()
	require.NoError(t, h.c.StopScan(settings))
	assert.Empty(t, h.transport.calls)
}

func TestWithMode(t *testing.T) {
	s := &Settings{Mode: ModeLowPower, ReportDelay: time.Second}
	assert.Same(t, s, s.WithMode(ModeLowPower))

	derived := s.WithMode(ModeLowLatency)
	assert.NotSame(t, s, derived)
	assert.Equal(t, ModeLowLatency, derived.Mode)
	assert.Equal(t, time.Second, derived.ReportDelay)
	assert.Equal(t, ModeLowPower, s.Mode)
}

func TestStateMode(t *testing.T) {
	assert.Equal(t, ModeLowPower, SlowScan.Mode())
	assert.Equal(t, ModeLowLatency, FastScan.Mode())
}

func ops(calls []call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.op)
	}
	return out
}
