package motion

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-pacer.klederson.com/internal/dispatch/dispatchtest"
)

type recordingListener struct {
	motions  int
	timeouts int
}

func (l *recordingListener) OnMotion()        { l.motions++ }
func (l *recordingListener) OnMotionTimeout() { l.timeouts++ }

type fakeAccelerometer struct {
	fn           func(Sample)
	subscribes   int
	unsubscribes int
}

func (a *fakeAccelerometer) Name() string { return "fake-accel" }

func (a *fakeAccelerometer) Subscribe(fn func(Sample)) error {
	a.fn = fn
	a.subscribes++
	return nil
}

func (a *fakeAccelerometer) Unsubscribe() {
	a.fn = nil
	a.unsubscribes++
}

func (a *fakeAccelerometer) emit(z float64) {
	if a.fn != nil {
		a.fn(Sample{Z: z})
	}
}

type unsupportedSensor struct{}

func (unsupportedSensor) Name() string { return "thermometer" }

var (
	rest  = 9.8  // magnitude 96.04
	shake = 15.0 // magnitude 225, delta 128.96
)

func newAccelDetector(t *testing.T) (*Detector, *fakeAccelerometer, *recordingListener, *dispatchtest.Manual) {
	t.Helper()
	m := dispatchtest.NewManual()
	accel := &fakeAccelerometer{}
	det, err := NewDetector(accel, m, Config{Threshold: 92, Window: 10 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	l := &recordingListener{}
	require.NoError(t, det.Register(l))
	return det, accel, l, m
}

func TestNewDetectorRejectsUnsupportedSensor(t *testing.T) {
	_, err := NewDetector(unsupportedSensor{}, dispatchtest.NewManual(), Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnsupportedSensor)
}

func TestNewDetectorDefaults(t *testing.T) {
	det, err := NewDetector(&fakeAccelerometer{}, dispatchtest.NewManual(), Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 92.0, det.Threshold())
	assert.Equal(t, 10*time.Second, det.window)
}

func TestFirstSampleOnlyEstablishesBaseline(t *testing.T) {
	_, accel, l, _ := newAccelDetector(t)

	accel.emit(shake)
	assert.Equal(t, 0, l.motions)
}

func TestSmallChangesAreIgnored(t *testing.T) {
	det, accel, l, _ := newAccelDetector(t)

	accel.emit(rest)
	accel.emit(rest + 0.5)
	accel.emit(rest - 0.5)
	assert.Equal(t, 0, l.motions)
	assert.False(t, det.Armed())
}

func TestSingleMotionPerRun(t *testing.T) {
	det, accel, l, m := newAccelDetector(t)

	accel.emit(rest)
	accel.emit(shake)
	accel.emit(rest)
	accel.emit(shake)
	m.Advance(5 * time.Second)
	accel.emit(rest)

	assert.Equal(t, 1, l.motions)
	assert.Equal(t, 0, l.timeouts)
	assert.True(t, det.Armed())
}

func TestWindowRestartsOnEachQualifyingChange(t *testing.T) {
	_, accel, l, m := newAccelDetector(t)

	accel.emit(rest)
	accel.emit(shake)
	m.Advance(8 * time.Second)
	accel.emit(rest)
	m.Advance(8 * time.Second)
	assert.Equal(t, 0, l.timeouts, "window re-armed by the second change")

	m.Advance(2 * time.Second)
	assert.Equal(t, 1, l.timeouts)
	assert.Equal(t, 1, l.motions)
}

func TestTimeoutFiresOnceAndResetsBaseline(t *testing.T) {
	det, accel, l, m := newAccelDetector(t)

	accel.emit(rest)
	accel.emit(shake)
	m.Advance(time.Minute)

	assert.Equal(t, 1, l.timeouts)
	assert.False(t, det.Armed())
	assert.Equal(t, 0, m.Pending())

	// Post-timeout the next sample is a fresh baseline, not a comparison.
	accel.emit(rest)
	assert.Equal(t, 1, l.motions)
	accel.emit(shake)
	assert.Equal(t, 2, l.motions)
}

func TestOnTimeoutWithoutWindowIsNoop(t *testing.T) {
	det, _, l, _ := newAccelDetector(t)

	det.OnTimeout()
	assert.Equal(t, 0, l.timeouts)
}

func TestMalformedSampleRebaselines(t *testing.T) {
	_, accel, l, _ := newAccelDetector(t)

	accel.emit(rest)
	accel.fn(Sample{X: math.NaN()})
	accel.emit(shake)
	assert.Equal(t, 0, l.motions, "sample after NaN is a new baseline")

	accel.fn(Sample{Y: math.Inf(1)})
	accel.emit(rest)
	assert.Equal(t, 0, l.motions)
}

func TestSetThresholdAppliesToNextSample(t *testing.T) {
	det, accel, l, _ := newAccelDetector(t)

	det.SetThreshold(500)
	accel.emit(rest)
	accel.emit(shake)
	assert.Equal(t, 0, l.motions)

	det.SetThreshold(-1)
	assert.Equal(t, 500.0, det.Threshold())
}

func TestRegisterTwiceIsIgnored(t *testing.T) {
	det, accel, l, _ := newAccelDetector(t)

	require.NoError(t, det.Register(&recordingListener{}))
	assert.Equal(t, 1, accel.subscribes)

	accel.emit(rest)
	accel.emit(shake)
	assert.Equal(t, 1, l.motions)
}

func TestUnregisterCancelsWindow(t *testing.T) {
	det, accel, l, m := newAccelDetector(t)

	accel.emit(rest)
	accel.emit(shake)
	det.Unregister()
	det.Unregister()

	assert.Equal(t, 1, accel.unsubscribes)
	assert.Equal(t, 0, m.Pending())
	m.Advance(time.Minute)
	assert.Equal(t, 0, l.timeouts)

	det.OnSample(Sample{Z: rest})
	det.OnSample(Sample{Z: shake})
	assert.Equal(t, 1, l.motions)
}

func TestHardwareTriggerIsRearmed(t *testing.T) {
	m := dispatchtest.NewManual()
	trig := NewManualTrigger()
	det, err := NewDetector(trig, m, Config{Threshold: 92, Window: 10 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	l := &recordingListener{}
	require.NoError(t, det.Register(l))
	assert.True(t, trig.Armed())

	assert.True(t, trig.Fire())
	assert.Equal(t, 1, l.motions)
	assert.True(t, trig.Armed(), "trigger re-requested after firing")

	m.Advance(5 * time.Second)
	assert.True(t, trig.Fire())
	assert.Equal(t, 1, l.motions)

	m.Advance(10 * time.Second)
	assert.Equal(t, 1, l.timeouts)

	det.Unregister()
	assert.False(t, trig.Armed())
	assert.False(t, trig.Fire())
}

func TestSamplesIgnoredInTriggerMode(t *testing.T) {
	m := dispatchtest.NewManual()
	det, err := NewDetector(NewManualTrigger(), m, Config{}, zerolog.Nop())
	require.NoError(t, err)
	l := &recordingListener{}
	require.NoError(t, det.Register(l))

	det.OnSample(Sample{Z: rest})
	det.OnSample(Sample{Z: shake})
	assert.Equal(t, 0, l.motions)
}
