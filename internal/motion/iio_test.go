package motion

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIIODevice(t *testing.T, root, name string, x, y, z, scale string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"in_accel_x_raw": x,
		"in_accel_y_raw": y,
		"in_accel_z_raw": z,
	}
	if scale != "" {
		files["in_accel_scale"] = scale
	}
	for f, v := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(v+"\n"), 0o644))
	}
	return dir
}

func TestFindIIOAccelerometer(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "iio:device0"), 0o755))
	want := writeIIODevice(t, root, "iio:device1", "0", "0", "1000", "0.0098")

	dir, err := FindIIOAccelerometer(root)
	require.NoError(t, err)
	assert.Equal(t, want, dir)
}

func TestFindIIOAccelerometerNone(t *testing.T) {
	_, err := FindIIOAccelerometer(t.TempDir())
	assert.ErrorIs(t, err, ErrNoAccelerometer)

	_, err = FindIIOAccelerometer(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNoAccelerometer)
}

func TestIIOReadScalesAxes(t *testing.T) {
	dir := writeIIODevice(t, t.TempDir(), "iio:device0", "100", "-200", "1000", "0.01")
	a, err := NewIIOAccelerometer(dir, time.Second)
	require.NoError(t, err)

	s := a.Read(time.Now())
	assert.InDelta(t, 1.0, s.X, 1e-9)
	assert.InDelta(t, -2.0, s.Y, 1e-9)
	assert.InDelta(t, 10.0, s.Z, 1e-9)
}

func TestIIOReadFailureYieldsNaN(t *testing.T) {
	dir := writeIIODevice(t, t.TempDir(), "iio:device0", "1", "2", "3", "")
	a, err := NewIIOAccelerometer(dir, time.Second)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "in_accel_y_raw"), []byte("garbage"), 0o644))
	s := a.Read(time.Now())
	assert.True(t, math.IsNaN(s.Magnitude()))
}

func TestIIOSubscribeDeliversSamples(t *testing.T) {
	dir := writeIIODevice(t, t.TempDir(), "iio:device0", "0", "0", "981", "0.01")
	a, err := NewIIOAccelerometer(dir, 5*time.Millisecond)
	require.NoError(t, err)

	got := make(chan Sample, 16)
	require.NoError(t, a.Subscribe(func(s Sample) {
		select {
		case got <- s:
		default:
		}
	}))
	assert.Error(t, a.Subscribe(func(Sample) {}))

	select {
	case s := <-got:
		assert.InDelta(t, 9.81, s.Z, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered")
	}
	require.NoError(t, a.Close())
}

func TestIIOUnsubscribeFromSampleCallback(t *testing.T) {
	dir := writeIIODevice(t, t.TempDir(), "iio:device0", "0", "0", "981", "0.01")
	a, err := NewIIOAccelerometer(dir, 5*time.Millisecond)
	require.NoError(t, err)

	var once sync.Once
	unsubscribed := make(chan struct{})
	require.NoError(t, a.Subscribe(func(Sample) {
		once.Do(func() {
			a.Unsubscribe()
			close(unsubscribed)
		})
	}))

	select {
	case <-unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe blocked on its own poller")
	}
	require.NoError(t, a.Subscribe(func(Sample) {}), "resubscribe after unsubscribe")
	require.NoError(t, a.Close())
}

func TestNewIIOAccelerometerMissingAxis(t *testing.T) {
	dir := writeIIODevice(t, t.TempDir(), "iio:device0", "0", "0", "0", "")
	require.NoError(t, os.Remove(filepath.Join(dir, "in_accel_z_raw")))

	_, err := NewIIOAccelerometer(dir, time.Second)
	assert.Error(t, err)
}

func TestOpenSensorAutoFallsBackToTrigger(t *testing.T) {
	s, err := OpenSensor(SensorOptions{Kind: "auto", IIORoot: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &ManualTrigger{}, s)
}

func TestOpenSensorKinds(t *testing.T) {
	root := t.TempDir()
	writeIIODevice(t, root, "iio:device0", "0", "0", "0", "")

	s, err := OpenSensor(SensorOptions{Kind: "auto", IIORoot: root}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &IIOAccelerometer{}, s)

	s, err = OpenSensor(SensorOptions{Kind: "simulated"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SimulatedAccelerometer{}, s)

	_, err = OpenSensor(SensorOptions{Kind: "iio", IIORoot: t.TempDir()}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoAccelerometer)

	_, err = OpenSensor(SensorOptions{Kind: "gyro"}, zerolog.Nop())
	assert.Error(t, err)
}
