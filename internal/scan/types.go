// Package scan holds the scan-mode scheduler: a three-state controller that
// maps screen, motion and idle time onto a scan mode and re-parameterizes
// every registered scan session whenever that mode changes.
package scan

import (
	"errors"
	"fmt"
	"time"
)

// State is the controller state.
type State int

const (
	NoScan State = iota
	SlowScan
	FastScan
)

func (s State) String() string {
	switch s {
	case NoScan:
		return "no-scan"
	case SlowScan:
		return "slow-scan"
	case FastScan:
		return "fast-scan"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode returns the scan mode sessions run at in this state. NoScan has no
// mode; it reports ModeLowPower and callers must not start sessions.
func (s State) Mode() Mode {
	if s == FastScan {
		return ModeLowLatency
	}
	return ModeLowPower
}

// Mode is a radio scan duty cycle.
type Mode int

const (
	ModeLowPower Mode = iota
	ModeBalanced
	ModeLowLatency
)

func (m Mode) String() string {
	switch m {
	case ModeLowPower:
		return "low-power"
	case ModeBalanced:
		return "balanced"
	case ModeLowLatency:
		return "low-latency"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// CallbackType selects which advertisements reach a session's callback.
type CallbackType int

const (
	// CallbackAllMatches delivers every matching advertisement.
	CallbackAllMatches CallbackType = iota
	// CallbackFirstMatch delivers an advertiser only the first time it is seen.
	CallbackFirstMatch
)

func (c CallbackType) String() string {
	if c == CallbackFirstMatch {
		return "first"
	}
	return "all"
}

// ResultType selects how much of each advertisement is delivered.
type ResultType int

const (
	ResultFull ResultType = iota
	// ResultAbbreviated drops manufacturer data and service lists.
	ResultAbbreviated
)

func (r ResultType) String() string {
	if r == ResultAbbreviated {
		return "abbreviated"
	}
	return "full"
}

// Settings parameterize one scan session. The controller keys sessions by
// the identity of the *Settings passed to StartScan, so callers must keep
// the pointer and must not mutate it while registered.
type Settings struct {
	Mode         Mode
	CallbackType CallbackType
	ResultType   ResultType
	// ReportDelay > 0 batches results and delivers them at most this often.
	ReportDelay time.Duration
}

// WithMode returns settings identical to s except for the mode. When the
// mode already matches, s itself is returned.
func (s *Settings) WithMode(m Mode) *Settings {
	if s.Mode == m {
		return s
	}
	cp := *s
	cp.Mode = m
	return &cp
}

// Result is one advertisement delivered to a session.
type Result struct {
	Address          string            `json:"address"`
	Name             string            `json:"name,omitempty"`
	RSSI             int16             `json:"rssi"`
	ManufacturerData map[uint16][]byte `json:"manufacturer_data,omitempty"`
	Services         []string          `json:"services,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Abbreviated strips the payload fields.
func (r Result) Abbreviated() Result {
	r.ManufacturerData = nil
	r.Services = nil
	return r
}

// Callback receives results for one session. Transports deliver on the
// dispatch loop.
type Callback interface {
	OnScanResult(r Result)
	OnScanFailed(err error)
}

// BatchCallback is implemented by callbacks that want delayed reports
// delivered as one batch instead of one OnScanResult per advertisement.
type BatchCallback interface {
	Callback
	OnBatchScanResults(rs []Result)
}

// Transport starts and stops scans. Both calls must be non-blocking and
// must tolerate stop-then-start with the same callback.
type Transport interface {
	StartScan(filters []Filter, settings *Settings, cb Callback) bool
	StopScan(cb Callback)
}

// ErrUnknownSession matches any *UnknownSessionError.
var ErrUnknownSession = errors.New("unknown scan session")

// UnknownSessionError is returned by StopScan for settings that were never
// registered. It always indicates a caller bug.
type UnknownSessionError struct {
	Settings *Settings
}

func (e *UnknownSessionError) Error() string {
	if e.Settings == nil {
		return "asked to stop a scan with nil settings"
	}
	return fmt.Sprintf("asked to stop an unknown scan session (settings %p)", e.Settings)
}

func (e *UnknownSessionError) Is(target error) bool {
	return target == ErrUnknownSession
}

// Event is an input to the controller's transition function.
type Event int

const (
	EventScreenOn Event = iota
	EventScreenOff
	EventMotionStarted
	EventMotionTimedOut
	EventIdleTimerFired
)

func (e Event) String() string {
	switch e {
	case EventScreenOn:
		return "screen-on"
	case EventScreenOff:
		return "screen-off"
	case EventMotionStarted:
		return "motion-started"
	case EventMotionTimedOut:
		return "motion-timed-out"
	case EventIdleTimerFired:
		return "idle-timer-fired"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}
