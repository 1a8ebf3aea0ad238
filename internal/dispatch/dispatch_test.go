package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ble-pacer.klederson.com/internal/config"
)

func startLoop(t *testing.T, clk clock.Clock) *Loop {
	t.Helper()
	l := New(clk, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoopRunsEventsInOrder(t *testing.T) {
	l := startLoop(t, clock.NewMock())

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}

	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() {
		snapshot = append(snapshot, got...)
	}))

	require.Len(t, snapshot, 100)
	for i, v := range snapshot {
		assert.Equal(t, i, v)
	}
}

func TestLoopSerializesConcurrentPosters(t *testing.T) {
	l := startLoop(t, clock.NewMock())

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var total int
	require.NoError(t, l.Do(context.Background(), func() { total = counter }))
	assert.Equal(t, 400, total)
}

func TestLoopAfterFuncFires(t *testing.T) {
	mock := clock.NewMock()
	l := startLoop(t, mock)

	fired := make(chan struct{}, 1)
	require.NoError(t, l.Do(context.Background(), func() {
		l.AfterFunc(10*time.Second, func() { fired <- struct{}{} })
	}))

	mock.Add(9 * time.Second)
	select {
	case <-fired:
		t.Fatal("timer fired early")
	case <-time.After(20 * time.Millisecond):
	}

	mock.Add(time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestLoopTimerStopIsSynchronous(t *testing.T) {
	mock := clock.NewMock()
	l := startLoop(t, mock)

	var timer Timer
	fired := false
	require.NoError(t, l.Do(context.Background(), func() {
		timer = l.AfterFunc(time.Second, func() { fired = true })
	}))

	// Block the loop so the firing gets queued behind us, then cancel the
	// timer from inside the same handler before the queued firing runs.
	release := make(chan struct{})
	entered := make(chan struct{})
	l.Post(func() {
		close(entered)
		<-release
		assert.True(t, timer.Stop())
	})
	<-entered
	mock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	close(release)

	var result bool
	require.NoError(t, l.Do(context.Background(), func() { result = fired }))
	assert.False(t, result, "cancelled timer must not run")
	require.NoError(t, l.Do(context.Background(), func() {
		assert.False(t, timer.Stop(), "second Stop reports not pending")
	}))
}

func TestLoopPostAfterStop(t *testing.T) {
	l := New(clock.NewMock(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	cancel()
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoopTryPostNeverBlocks(t *testing.T) {
	l := New(clock.NewMock(), zerolog.Nop())

	// Not running yet, so nothing drains the queue.
	for i := 0; i < config.EventQueueSize; i++ {
		require.True(t, l.TryPost(func() {}))
	}
	assert.False(t, l.TryPost(func() {}), "full queue must reject instead of blocking")

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.True(t, l.TryPost(func() {}))

	cancel()
	<-l.Done()
	assert.False(t, l.TryPost(func() {}))
}
