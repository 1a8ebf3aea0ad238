package bluetooth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/dispatch"
	"ble-pacer.klederson.com/internal/metrics"
	"ble-pacer.klederson.com/internal/scan"
)

// errScanEnded is reported when a radio returns without being cancelled.
var errScanEnded = errors.New("radio scan ended unexpectedly")

// registration is one started scan.
type registration struct {
	filters  []scan.Filter
	settings *scan.Settings
	cb       scan.Callback

	// Loop-only fields.
	seen  map[string]bool
	batch []scan.Result
	flush dispatch.Timer
}

// TransportStatus is a snapshot of the transport.
type TransportStatus struct {
	Radio         string `json:"radio"`
	Running       bool   `json:"running"`
	Mode          string `json:"mode,omitempty"`
	Registrations int    `json:"registrations"`
}

// Transport multiplexes scan sessions onto a single radio. The radio runs
// at the most aggressive mode any registration asks for and is stopped when
// none remain. Results are matched per registration and delivered on the
// dispatch loop. StartScan and StopScan never block on the radio.
type Transport struct {
	radio      Radio
	dispatcher dispatch.Dispatcher
	backoff    time.Duration
	logger     zerolog.Logger

	mu      sync.Mutex
	regs    map[scan.Callback]*registration
	running bool
	mode    scan.Mode
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ scan.Transport = (*Transport)(nil)

// NewTransport creates a transport over radio.
func NewTransport(radio Radio, d dispatch.Dispatcher, logger zerolog.Logger) *Transport {
	return &Transport{
		radio:      radio,
		dispatcher: d,
		backoff:    config.RadioRestartBackoff,
		logger:     logger.With().Str("component", "transport").Str("radio", radio.Name()).Logger(),
		regs:       make(map[scan.Callback]*registration),
	}
}

// StartScan registers cb, replacing any previous registration for it.
func (t *Transport) StartScan(filters []scan.Filter, settings *scan.Settings, cb scan.Callback) bool {
	if settings == nil || cb == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.regs[cb]; ok {
		t.cancelFlush(old)
	}
	t.regs[cb] = &registration{
		filters:  filters,
		settings: settings,
		cb:       cb,
		seen:     make(map[string]bool),
	}
	t.reconcile()
	return true
}

// StopScan unregisters cb. Unknown callbacks are ignored. Like StartScan it
// is called from the dispatch loop.
func (t *Transport) StopScan(cb scan.Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.regs[cb]
	if !ok {
		return
	}
	t.cancelFlush(reg)
	delete(t.regs, cb)
	t.reconcile()
}

// Status returns a snapshot.
func (t *Transport) Status() TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := TransportStatus{
		Radio:         t.radio.Name(),
		Running:       t.running,
		Registrations: len(t.regs),
	}
	if t.running {
		st.Mode = t.mode.String()
	}
	return st
}

// Close drops every registration, stops the radio and waits for it. It
// must run on the dispatch loop or after the loop has exited.
func (t *Transport) Close() error {
	t.mu.Lock()
	for cb, reg := range t.regs {
		t.cancelFlush(reg)
		delete(t.regs, cb)
	}
	t.reconcile()
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// reconcile makes the radio match the registrations. Caller holds t.mu.
func (t *Transport) reconcile() {
	if len(t.regs) == 0 {
		if t.running {
			t.logger.Debug().Msg("No registrations, stopping radio")
			t.cancel()
			t.running = false
		}
		return
	}

	want := scan.ModeLowPower
	for _, reg := range t.regs {
		if reg.settings.Mode > want {
			want = reg.settings.Mode
		}
	}
	if t.running && t.mode == want {
		return
	}

	if t.running {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev := t.done
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	t.running, t.mode = true, want

	t.logger.Info().Stringer("mode", want).Int("registrations", len(t.regs)).Msg("Starting radio")
	go t.run(ctx, want, prev, done)
}

// run drives one radio session. Runs never overlap: each waits for the
// previous one to release the radio.
func (t *Transport) run(ctx context.Context, mode scan.Mode, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	name := t.radio.Name()
	for ctx.Err() == nil {
		metrics.RadioRestarts.WithLabelValues(name, mode.String()).Inc()
		err := t.radio.Scan(ctx, mode, func(r scan.Result) {
			metrics.ScanResults.WithLabelValues(name).Inc()
			t.deliver(r)
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errScanEnded
		}

		metrics.RadioErrors.WithLabelValues(name).Inc()
		t.logger.Warn().Err(err).Dur("retry_in", t.backoff).Msg("Radio scan failed")
		t.fail(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.backoff):
		}
	}
}

// deliver fans a result out to matching registrations via the loop.
func (t *Transport) deliver(r scan.Result) {
	t.mu.Lock()
	var matched []*registration
	for _, reg := range t.regs {
		if scan.MatchAny(reg.filters, r) {
			matched = append(matched, reg)
		}
	}
	t.mu.Unlock()

	for _, reg := range matched {
		reg := reg
		t.dispatcher.Post(func() { t.dispatch(reg, r) })
	}
}

// dispatch runs on the loop.
func (t *Transport) dispatch(reg *registration, r scan.Result) {
	if !t.active(reg) {
		return
	}

	if reg.settings.CallbackType == scan.CallbackFirstMatch {
		if reg.seen[r.Address] {
			return
		}
		reg.seen[r.Address] = true
	}
	if reg.settings.ResultType == scan.ResultAbbreviated {
		r = r.Abbreviated()
	}

	if delay := reg.settings.ReportDelay; delay > 0 {
		reg.batch = append(reg.batch, r)
		if reg.flush == nil {
			reg.flush = t.dispatcher.AfterFunc(delay, func() { t.flushBatch(reg) })
		}
		return
	}
	reg.cb.OnScanResult(r)
}

func (t *Transport) flushBatch(reg *registration) {
	reg.flush = nil
	batch := reg.batch
	reg.batch = nil
	if len(batch) == 0 || !t.active(reg) {
		return
	}
	if bc, ok := reg.cb.(scan.BatchCallback); ok {
		bc.OnBatchScanResults(batch)
		return
	}
	for _, r := range batch {
		reg.cb.OnScanResult(r)
	}
}

// fail reports a radio error to every registration on the loop.
func (t *Transport) fail(err error) {
	t.mu.Lock()
	regs := make([]*registration, 0, len(t.regs))
	for _, reg := range t.regs {
		regs = append(regs, reg)
	}
	t.mu.Unlock()

	for _, reg := range regs {
		reg := reg
		t.dispatcher.Post(func() {
			if t.active(reg) {
				reg.cb.OnScanFailed(err)
			}
		})
	}
}

func (t *Transport) active(reg *registration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regs[reg.cb] == reg
}

// cancelFlush drops a pending batch. Called on the loop with t.mu held.
func (t *Transport) cancelFlush(reg *registration) {
	if reg.flush != nil {
		reg.flush.Stop()
		reg.flush = nil
	}
	reg.batch = nil
}
