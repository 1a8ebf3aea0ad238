// Package daemon assembles the scan pacer from configuration and exposes a
// goroutine-safe facade over the dispatch loop for the API and dashboard.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/bluetooth"
	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/dispatch"
	"ble-pacer.klederson.com/internal/logging"
	"ble-pacer.klederson.com/internal/motion"
	"ble-pacer.klederson.com/internal/scan"
	"ble-pacer.klederson.com/internal/screen"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrScreenNotManual is returned when the screen source cannot be driven by hand.
	ErrScreenNotManual = errors.New("screen source is not manual")
	// ErrMotionNotManual is returned when the motion sensor cannot be triggered by hand.
	ErrMotionNotManual = errors.New("motion sensor cannot be triggered manually")
	// ErrShutdown is returned for sessions added after the controller shut down.
	ErrShutdown = errors.New("scan controller is shut down")
)

// MotionStatus describes the motion detector.
type MotionStatus struct {
	Sensor    string  `json:"sensor"`
	Armed     bool    `json:"armed"`
	Threshold float64 `json:"threshold"`
	Manual    bool    `json:"manual"`
}

// Snapshot is the complete observable state.
type Snapshot struct {
	Controller   scan.Status               `json:"controller"`
	Transport    bluetooth.TransportStatus `json:"transport"`
	Motion       MotionStatus              `json:"motion"`
	ScreenManual bool                      `json:"screen_manual"`
	Devices      int                       `json:"devices"`
	History      []Transition              `json:"history,omitempty"`
	Failures     []SessionFailures         `json:"failures,omitempty"`
	StartedAt    time.Time                 `json:"started_at"`
}

// SessionFailures counts the radio errors reported to one session.
type SessionFailures struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	LastError string `json:"last_error,omitempty"`
}

// Options configure New.
type Options struct {
	Config     *config.Config
	ConfigPath string // watched for hot reload when set
	Clock      clock.Clock
	Logger     zerolog.Logger

	// Overrides for tests and demo mode.
	Radio  bluetooth.Radio
	Sensor motion.Sensor
	Screen screen.Source
}

// Service owns every component. Its exported methods are safe for
// concurrent use; they hop onto the dispatch loop internally.
type Service struct {
	cfg        *config.Config
	configPath string
	logger     zerolog.Logger

	loop       *dispatch.Loop
	radio      bluetooth.Radio
	transport  *bluetooth.Transport
	sensor     motion.Sensor
	detector   *motion.Detector
	screen     screen.Source
	controller *scan.Controller
	store      *bluetooth.DeviceStore

	// Loop-only.
	callbacks map[string]*sessionCallback
	history   *TransitionRing
	lastState scan.State
	started   time.Time
}

// New builds every component and registers the configured sessions. The
// dispatch loop is not running until Run.
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger

	s := &Service{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		logger:     logger.With().Str("component", "daemon").Logger(),
		loop:       dispatch.New(clk, logger),
		store:      bluetooth.NewDeviceStore(cfg.Devices.CacheSize, cfg.Devices.TTL),
		callbacks:  make(map[string]*sessionCallback),
		history:    NewTransitionRing(config.HistoryEntries),
		started:    clk.Now(),
	}

	var err error
	s.radio = opts.Radio
	if s.radio == nil {
		if s.radio, err = bluetooth.OpenRadio(cfg.Scan.Backend, cfg.Scan.Adapter); err != nil {
			return nil, fmt.Errorf("failed to open radio: %w", err)
		}
	}
	s.transport = bluetooth.NewTransport(s.radio, s.loop, logger)

	s.sensor = opts.Sensor
	if s.sensor == nil {
		s.sensor, err = motion.OpenSensor(motion.SensorOptions{
			Kind:         cfg.Motion.Sensor,
			IIOPath:      cfg.Motion.IIOPath,
			PollInterval: cfg.Motion.PollInterval,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open motion sensor: %w", err)
		}
	}
	s.detector, err = motion.NewDetector(s.sensor, s.loop, motion.Config{
		Threshold: cfg.Motion.Threshold,
		Window:    cfg.Motion.Window,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create motion detector: %w", err)
	}

	s.screen = opts.Screen
	if s.screen == nil {
		initial, err := screen.ParseState(cfg.Screen.Initial)
		if err != nil {
			return nil, err
		}
		if s.screen, err = screen.Open(cfg.Screen.Source, initial, logger); err != nil {
			return nil, fmt.Errorf("failed to open screen source: %w", err)
		}
	}

	s.controller, err = scan.NewController(s.transport, s.detector, s.screen, s.loop, scan.Config{
		IdleTimeout: cfg.Scan.IdleTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan controller: %w", err)
	}
	s.lastState = s.controller.State()
	s.controller.AddObserver(s.observe)

	for _, sc := range cfg.Scan.Sessions {
		if _, err := s.addSession(sc); err != nil {
			return nil, fmt.Errorf("session %q: %w", sc.Name, err)
		}
	}

	s.logger.Info().
		Str("radio", s.radio.Name()).
		Str("sensor", s.sensor.Name()).
		Stringer("state", s.controller.State()).
		Int("sessions", s.controller.SessionCount()).
		Msg("Scan pacer initialized")
	return s, nil
}

// Run drives the dispatch loop until ctx is cancelled, then tears down.
func (s *Service) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopErr := make(chan error, 1)
	go func() { loopErr <- s.loop.Run(loopCtx) }()

	if err := config.Watch(s.configPath, s.logger, s.reload); err != nil {
		s.logger.Warn().Err(err).Msg("Config hot reload disabled")
	}

	if err := notifyReady(); err != nil {
		s.logger.Warn().Err(err).Msg("systemd notification failed")
	}

	<-ctx.Done()
	s.logger.Info().Msg("Shutting down")
	if err := notifyStopping(); err != nil {
		s.logger.Warn().Err(err).Msg("systemd notification failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.loop.Do(shutdownCtx, s.controller.Shutdown); err != nil {
		s.logger.Warn().Err(err).Msg("Controller shutdown did not complete")
	}

	stopLoop()
	<-loopErr
	return s.close()
}

func (s *Service) close() error {
	var errs []error
	if err := s.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range []any{s.radio, s.sensor, s.screen} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// reload applies hot-reloadable settings.
func (s *Service) reload(cfg *config.Config) {
	logging.SetLevel(cfg.Logging.Level)
	threshold := cfg.Motion.Threshold
	s.loop.Post(func() { s.detector.SetThreshold(threshold) })
}

// observe runs on the loop after every controller change.
func (s *Service) observe(st scan.Status) {
	if st.State != s.lastState {
		s.history.Push(Transition{From: s.lastState, To: st.State, At: st.LastTransition})
		s.lastState = st.State
		notifyStatus(fmt.Sprintf("%s, %d sessions", st.State, st.Sessions))
	}
}

// Snapshot returns the current state.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.loop.Do(ctx, func() {
		snap = Snapshot{
			Controller: s.controller.Status(),
			Motion: MotionStatus{
				Sensor:    s.sensor.Name(),
				Armed:     s.detector.Armed(),
				Threshold: s.detector.Threshold(),
				Manual:    s.manualMotion(),
			},
			History:   s.history.Values(),
			Failures:  s.sessionFailures(),
			StartedAt: s.started,
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	_, snap.ScreenManual = s.screen.(*screen.Manual)
	snap.Transport = s.transport.Status()
	snap.Devices = s.store.Count()
	return snap, nil
}

// Sessions lists the registered sessions.
func (s *Service) Sessions(ctx context.Context) ([]scan.SessionInfo, error) {
	var out []scan.SessionInfo
	err := s.loop.Do(ctx, func() { out = s.controller.Sessions() })
	return out, err
}

// AddSession registers a new session.
func (s *Service) AddSession(ctx context.Context, sc config.SessionConfig) (scan.SessionInfo, error) {
	var (
		info   scan.SessionInfo
		addErr error
	)
	if err := s.loop.Do(ctx, func() { info, addErr = s.addSession(sc) }); err != nil {
		return scan.SessionInfo{}, err
	}
	return info, addErr
}

// RemoveSession stops and removes a session by ID.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	var rmErr error
	if err := s.loop.Do(ctx, func() { rmErr = s.removeSession(id) }); err != nil {
		return err
	}
	return rmErr
}

// RemoveNewestSession removes the most recently registered session.
func (s *Service) RemoveNewestSession(ctx context.Context) error {
	var rmErr error
	err := s.loop.Do(ctx, func() {
		sessions := s.controller.Sessions()
		if len(sessions) == 0 {
			rmErr = ErrSessionNotFound
			return
		}
		rmErr = s.removeSession(sessions[len(sessions)-1].ID)
	})
	if err != nil {
		return err
	}
	return rmErr
}

// SetScreen drives a manual screen source.
func (s *Service) SetScreen(on bool) error {
	m, ok := s.screen.(*screen.Manual)
	if !ok {
		return ErrScreenNotManual
	}
	m.Set(on)
	return nil
}

// ToggleScreen flips a manual screen source.
func (s *Service) ToggleScreen() (bool, error) {
	m, ok := s.screen.(*screen.Manual)
	if !ok {
		return false, ErrScreenNotManual
	}
	return m.Toggle(), nil
}

// TriggerMotion fires a manual trigger or shakes a simulated accelerometer.
func (s *Service) TriggerMotion() error {
	switch sensor := s.sensor.(type) {
	case *motion.ManualTrigger:
		if !sensor.Fire() {
			return fmt.Errorf("motion trigger not armed")
		}
		return nil
	case *motion.SimulatedAccelerometer:
		sensor.Shake(time.Second)
		return nil
	default:
		return ErrMotionNotManual
	}
}

// Devices returns the discovered devices, strongest first.
func (s *Service) Devices() []bluetooth.Device {
	return s.store.Snapshot()
}

func (s *Service) manualMotion() bool {
	switch s.sensor.(type) {
	case *motion.ManualTrigger, *motion.SimulatedAccelerometer:
		return true
	}
	return false
}

// addSession runs on the loop (or before it starts).
func (s *Service) addSession(sc config.SessionConfig) (scan.SessionInfo, error) {
	sc, err := resolveManufacturers(sc)
	if err != nil {
		return scan.SessionInfo{}, err
	}
	settings, filters, err := scan.FromConfig(sc)
	if err != nil {
		return scan.SessionInfo{}, err
	}
	if s.controller.Status().Shutdown {
		return scan.SessionInfo{}, ErrShutdown
	}
	cb := &sessionCallback{name: sc.Name, store: s.store, logger: s.logger}
	if !s.controller.StartNamedScan(sc.Name, settings, filters, cb) {
		s.logger.Warn().Str("session", sc.Name).Msg("Session registered but transport did not start it")
	}

	sessions := s.controller.Sessions()
	info := sessions[len(sessions)-1]
	s.callbacks[info.ID] = cb
	return info, nil
}

// resolveManufacturers turns vendor names in filters into company IDs. An
// explicit manufacturer_id wins over the name.
func resolveManufacturers(sc config.SessionConfig) (config.SessionConfig, error) {
	if len(sc.Filters) == 0 {
		return sc, nil
	}
	filters := make([]config.FilterConfig, len(sc.Filters))
	copy(filters, sc.Filters)
	for i, fc := range filters {
		if fc.Manufacturer == "" || fc.ManufacturerID != nil {
			continue
		}
		id, ok := bluetooth.ManufacturerID(fc.Manufacturer)
		if !ok {
			return sc, fmt.Errorf("session %q: unknown manufacturer %q", sc.Name, fc.Manufacturer)
		}
		filters[i].ManufacturerID = &id
	}
	sc.Filters = filters
	return sc, nil
}

func (s *Service) removeSession(id string) error {
	settings, ok := s.controller.Lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.controller.StopScan(settings); err != nil {
		return err
	}
	delete(s.callbacks, id)
	return nil
}

// sessionFailures lists sessions that have seen at least one scan failure,
// in registration order. Runs on the loop.
func (s *Service) sessionFailures() []SessionFailures {
	var out []SessionFailures
	for _, info := range s.controller.Sessions() {
		cb, ok := s.callbacks[info.ID]
		if !ok || cb.failures == 0 {
			continue
		}
		out = append(out, SessionFailures{
			ID:        info.ID,
			Name:      info.Name,
			Count:     cb.failures,
			LastError: cb.lastErr,
		})
	}
	return out
}

// sessionCallback feeds a session's results into the device store. Its
// failure counters are touched only on the loop.
type sessionCallback struct {
	name   string
	store  *bluetooth.DeviceStore
	logger zerolog.Logger

	failures int
	lastErr  string
}

func (c *sessionCallback) OnScanResult(r scan.Result) {
	c.store.Upsert(c.name, r)
}

func (c *sessionCallback) OnBatchScanResults(rs []scan.Result) {
	for _, r := range rs {
		c.store.Upsert(c.name, r)
	}
}

func (c *sessionCallback) OnScanFailed(err error) {
	c.failures++
	c.lastErr = err.Error()
	c.logger.Warn().Err(err).Str("session", c.name).Msg("Scan failed")
}
