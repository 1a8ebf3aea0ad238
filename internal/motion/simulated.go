package motion

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const gravity = 9.80665

// SimulatedAccelerometer produces a resting device (gravity on Z plus a
// little noise) that can be shaken on demand. Used by demo mode.
type SimulatedAccelerometer struct {
	interval time.Duration
	rng      *rand.Rand

	mu         sync.Mutex
	shakeUntil time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSimulatedAccelerometer creates a simulated sensor sampling every interval.
func NewSimulatedAccelerometer(interval time.Duration) *SimulatedAccelerometer {
	return &SimulatedAccelerometer{
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *SimulatedAccelerometer) Name() string { return "simulated-accelerometer" }

// Shake makes the device move violently for d.
func (a *SimulatedAccelerometer) Shake(d time.Duration) {
	a.mu.Lock()
	a.shakeUntil = time.Now().Add(d)
	a.mu.Unlock()
}

func (a *SimulatedAccelerometer) Subscribe(fn func(Sample)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, fn, a.done)
	return nil
}

// Unsubscribe stops polling. It does not wait for the poller, so it is safe
// to call from the goroutine that consumes samples.
func (a *SimulatedAccelerometer) Unsubscribe() {
	a.stop()
}

// stop cancels the poller and returns its done channel, or nil when idle.
func (a *SimulatedAccelerometer) stop() <-chan struct{} {
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

// Close stops the generator and waits for it to exit.
func (a *SimulatedAccelerometer) Close() error {
	if done := a.stop(); done != nil {
		<-done
	}
	return nil
}

func (a *SimulatedAccelerometer) loop(ctx context.Context, fn func(Sample), done chan struct{}) {
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
			fn(a.sample(now))
		}
	}
}

func (a *SimulatedAccelerometer) sample(now time.Time) Sample {
	a.mu.Lock()
	shaking := now.Before(a.shakeUntil)
	a.mu.Unlock()

	amp := 0.05
	if shaking {
		amp = 12
	}
	noise := func() float64 { return (a.rng.Float64()*2 - 1) * amp }
	return Sample{
		X:         noise(),
		Y:         noise(),
		Z:         gravity + noise(),
		Timestamp: now,
	}
}
