package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoAccelerometer is returned when no IIO accelerometer is present.
var ErrNoAccelerometer = errors.New("no IIO accelerometer found")

// IIOAccelerometer polls a Linux Industrial I/O accelerometer through sysfs
// (in_accel_{x,y,z}_raw scaled by in_accel_scale).
type IIOAccelerometer struct {
	dir      string
	interval time.Duration
	scale    float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// FindIIOAccelerometer returns the first device directory under root that
// exposes accelerometer channels.
func FindIIOAccelerometer(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoAccelerometer, err)
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "in_accel_x_raw")); err == nil {
			return dir, nil
		}
	}
	return "", ErrNoAccelerometer
}

// NewIIOAccelerometer opens the device at dir, polling every interval.
func NewIIOAccelerometer(dir string, interval time.Duration) (*IIOAccelerometer, error) {
	for _, axis := range []string{"x", "y", "z"} {
		if _, err := os.Stat(filepath.Join(dir, "in_accel_"+axis+"_raw")); err != nil {
			return nil, fmt.Errorf("%s: missing %s axis: %w", dir, axis, err)
		}
	}

	scale := 1.0
	if v, err := readFloat(filepath.Join(dir, "in_accel_scale")); err == nil && v > 0 {
		scale = v
	}

	return &IIOAccelerometer{
		dir:      dir,
		interval: interval,
		scale:    scale,
	}, nil
}

func (a *IIOAccelerometer) Name() string { return "iio:" + filepath.Base(a.dir) }

// Subscribe starts polling. Reads that fail produce a NaN sample so the
// detector re-baselines instead of comparing against a stale value.
func (a *IIOAccelerometer) Subscribe(fn func(Sample)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return fmt.Errorf("%s: already subscribed", a.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, fn, a.done)
	return nil
}

// Unsubscribe stops polling. It does not wait for the poller, so it is safe
// to call from the goroutine that consumes samples.
func (a *IIOAccelerometer) Unsubscribe() {
	a.stop()
}

// stop cancels the poller and returns its done channel, or nil when idle.
func (a *IIOAccelerometer) stop() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	done := a.done
	a.cancel, a.done = nil, nil
	return done
}

// Close stops polling and waits for the poller to exit. It must not be
// called from the goroutine that consumes samples.
func (a *IIOAccelerometer) Close() error {
	if done := a.stop(); done != nil {
		<-done
	}
	return nil
}

func (a *IIOAccelerometer) loop(ctx context.Context, fn func(Sample), done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			fn(a.Read(now))
		}
	}
}

// Read takes one reading.
func (a *IIOAccelerometer) Read(now time.Time) Sample {
	s := Sample{Timestamp: now}
	axes := []*float64{&s.X, &s.Y, &s.Z}
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(a.dir, "in_accel_"+axis+"_raw"))
		if err != nil {
			return Sample{X: math.NaN(), Timestamp: now}
		}
		*axes[i] = raw * a.scale
	}
	return s
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}
