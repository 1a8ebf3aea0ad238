// Package motion turns a noisy accelerometer stream (or one-shot significant
// motion triggers) into debounced motion / no-motion edges.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/dispatch"
	"ble-pacer.klederson.com/internal/metrics"
)

// Sample is one 3-axis accelerometer reading in m/s².
type Sample struct {
	X, Y, Z   float64
	Timestamp time.Time
}

// Magnitude returns the squared length of the acceleration vector.
func (s Sample) Magnitude() float64 {
	return s.X*s.X + s.Y*s.Y + s.Z*s.Z
}

// Listener receives motion edges.
type Listener interface {
	OnMotion()
	OnMotionTimeout()
}

// Sensor is a motion source. Concrete sensors implement exactly one of
// Accelerometer or SignificantMotion.
type Sensor interface {
	Name() string
}

// Accelerometer delivers a continuous stream of samples from its own
// goroutine until Unsubscribe.
type Accelerometer interface {
	Sensor
	Subscribe(fn func(Sample)) error
	Unsubscribe()
}

// SignificantMotion delivers at most one trigger per RequestTrigger call.
type SignificantMotion interface {
	Sensor
	RequestTrigger(fn func()) error
	CancelTrigger()
}

// ErrUnsupportedSensor is returned for sensors offering neither capability.
var ErrUnsupportedSensor = errors.New("sensor is neither an accelerometer nor a significant motion trigger")

// Config tunes the detector.
type Config struct {
	Threshold float64
	Window    time.Duration
}

// Detector is a retriggerable monostable over a motion sensor. All methods
// must run on the dispatch loop.
type Detector struct {
	sensor     Sensor
	accel      Accelerometer
	trigger    SignificantMotion
	dispatcher dispatch.Dispatcher
	threshold  float64
	window     time.Duration
	logger     zerolog.Logger

	listener    Listener
	previous    float64
	hasPrevious bool
	timeout     dispatch.Timer
}

// NewDetector binds a detector to sensor. The input variant is fixed here:
// significant-motion triggers win over raw samples when a sensor offers both.
func NewDetector(sensor Sensor, d dispatch.Dispatcher, cfg Config, logger zerolog.Logger) (*Detector, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = config.DefaultMotionThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = config.DefaultMotionWindow
	}

	det := &Detector{
		sensor:     sensor,
		dispatcher: d,
		threshold:  cfg.Threshold,
		window:     cfg.Window,
		logger:     logger.With().Str("component", "motion").Str("sensor", sensor.Name()).Logger(),
	}

	switch s := sensor.(type) {
	case SignificantMotion:
		det.trigger = s
	case Accelerometer:
		det.accel = s
	default:
		return nil, fmt.Errorf("%s: %w", sensor.Name(), ErrUnsupportedSensor)
	}

	return det, nil
}

// Register attaches the listener and starts consuming the sensor. A second
// registration while one is active is ignored.
func (d *Detector) Register(l Listener) error {
	if d.listener != nil {
		return nil
	}
	d.listener = l
	d.hasPrevious = false

	var err error
	if d.trigger != nil {
		err = d.trigger.RequestTrigger(d.postTrigger)
	} else {
		err = d.accel.Subscribe(d.postSample)
	}
	if err != nil {
		d.listener = nil
		return fmt.Errorf("failed to subscribe to %s: %w", d.sensor.Name(), err)
	}

	d.logger.Info().
		Float64("threshold", d.threshold).
		Dur("window", d.window).
		Msg("Motion listener registered")
	return nil
}

// Unregister detaches from the sensor and cancels a pending debounce window.
func (d *Detector) Unregister() {
	if d.listener == nil {
		return
	}
	d.stopTimeout()
	if d.trigger != nil {
		d.trigger.CancelTrigger()
	} else {
		d.accel.Unsubscribe()
	}
	d.listener = nil
	d.hasPrevious = false
	d.logger.Info().Msg("Motion listener unregistered")
}

// OnSample feeds one accelerometer reading.
func (d *Detector) OnSample(s Sample) {
	if d.listener == nil || d.accel == nil {
		return
	}

	vector := s.Magnitude()
	if math.IsNaN(vector) || math.IsInf(vector, 0) {
		d.hasPrevious = false
		metrics.SamplesDiscarded.Inc()
		d.logger.Debug().Msg("Discarding malformed sample, re-baselining")
		return
	}

	// Compare against the previous reading rather than 1g so badly
	// calibrated sensors still work.
	if d.hasPrevious && math.Abs(vector-d.previous) > d.threshold {
		d.motionEdge()
	}

	d.previous = vector
	d.hasPrevious = true
}

// OnHardwareTrigger feeds one significant-motion notification and re-arms
// the one-shot trigger.
func (d *Detector) OnHardwareTrigger() {
	if d.listener == nil || d.trigger == nil {
		return
	}

	d.motionEdge()

	if err := d.trigger.RequestTrigger(d.postTrigger); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to re-request motion trigger")
	}
}

// OnTimeout closes the debounce window. It is a no-op when no window is open.
func (d *Detector) OnTimeout() {
	if d.timeout == nil {
		return
	}
	d.stopTimeout()
	d.hasPrevious = false

	metrics.MotionEdges.WithLabelValues("timeout").Inc()
	d.logger.Debug().Msg("Motion timed out")
	if d.listener != nil {
		d.listener.OnMotionTimeout()
	}
}

// Armed reports whether a debounce window is open.
func (d *Detector) Armed() bool {
	return d.timeout != nil
}

// Threshold returns the current motion threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// SetThreshold changes the motion threshold for subsequent samples.
func (d *Detector) SetThreshold(threshold float64) {
	if threshold <= 0 || threshold == d.threshold {
		return
	}
	d.logger.Info().Float64("old", d.threshold).Float64("new", threshold).Msg("Motion threshold changed")
	d.threshold = threshold
}

// Sensor returns the sensor the detector was built on.
func (d *Detector) Sensor() Sensor {
	return d.sensor
}

func (d *Detector) motionEdge() {
	if d.timeout == nil {
		metrics.MotionEdges.WithLabelValues("started").Inc()
		d.logger.Debug().Msg("Motion started")
		d.listener.OnMotion()
	}
	d.startTimeout()
}

func (d *Detector) startTimeout() {
	d.stopTimeout()
	d.timeout = d.dispatcher.AfterFunc(d.window, d.OnTimeout)
}

func (d *Detector) stopTimeout() {
	if d.timeout != nil {
		d.timeout.Stop()
		d.timeout = nil
	}
}

func (d *Detector) postSample(s Sample) {
	if !d.dispatcher.TryPost(func() { d.OnSample(s) }) {
		metrics.SamplesDiscarded.Inc()
	}
}

func (d *Detector) postTrigger() {
	d.dispatcher.Post(d.OnHardwareTrigger)
}
