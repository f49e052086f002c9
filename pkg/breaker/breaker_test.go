package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func failingOp(calls *int) Operation {
	return func(context.Context) error {
		*calls++
		return errBoom
	}
}

func succeedingOp(calls *int) Operation {
	return func(context.Context) error {
		*calls++
		return nil
	}
}

func TestExecute_OpensAfterFailureThreshold(t *testing.T) {
	clock := newFakeClock()
	b := New("upstream",
		WithFailureThreshold(3),
		WithResetTimeout(30*time.Second),
		WithClock(clock.Now),
	)

	ctx := context.Background()
	calls := 0

	// Three consecutive failures open the circuit.
	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, failingOp(&calls))
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 3, calls)

	// A fourth call within the reset timeout fails fast without invoking
	// the operation.
	err := b.Execute(ctx, failingOp(&calls))
	assert.True(t, IsOpen(err))
	assert.Equal(t, 3, calls)
}

func TestExecute_HalfOpenProbeAfterResetTimeout(t *testing.T) {
	clock := newFakeClock()
	b := New("upstream",
		WithFailureThreshold(1),
		WithResetTimeout(30*time.Second),
		WithHalfOpenSuccessThreshold(2),
		WithClock(clock.Now),
	)

	ctx := context.Background()
	calls := 0

	require.ErrorIs(t, b.Execute(ctx, failingOp(&calls)), errBoom)
	require.Equal(t, Open, b.State())

	// Reset timeout elapses: the next call is admitted as the probe.
	clock.Advance(31 * time.Second)
	require.NoError(t, b.Execute(ctx, succeedingOp(&calls)))
	assert.Equal(t, HalfOpen, b.State())
	assert.Equal(t, 2, calls)

	// Second consecutive success closes the circuit and zeroes the counters.
	require.NoError(t, b.Execute(ctx, succeedingOp(&calls)))
	assert.Equal(t, Closed, b.State())
	failures, successes := b.Counts()
	assert.Zero(t, failures)
	assert.Zero(t, successes)
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := New("upstream",
		WithFailureThreshold(1),
		WithResetTimeout(10*time.Second),
		WithHalfOpenSuccessThreshold(3),
		WithClock(clock.Now),
	)

	ctx := context.Background()
	calls := 0

	require.Error(t, b.Execute(ctx, failingOp(&calls)))
	clock.Advance(11 * time.Second)

	// One successful probe, then a failure: the single failure re-opens the
	// circuit regardless of the prior success count.
	require.NoError(t, b.Execute(ctx, succeedingOp(&calls)))
	require.Equal(t, HalfOpen, b.State())
	require.ErrorIs(t, b.Execute(ctx, failingOp(&calls)), errBoom)
	assert.Equal(t, Open, b.State())

	// And it stays open until the reset timeout elapses again.
	err := b.Execute(ctx, succeedingOp(&calls))
	assert.True(t, IsOpen(err))
}

func TestExecute_SingleInFlightHalfOpenProbe(t *testing.T) {
	clock := newFakeClock()
	b := New("upstream",
		WithFailureThreshold(1),
		WithResetTimeout(time.Second),
		WithClock(clock.Now),
	)

	ctx := context.Background()
	require.Error(t, b.Execute(ctx, func(context.Context) error { return errBoom }))
	clock.Advance(2 * time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		probeDone <- b.Execute(ctx, func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	require.Equal(t, HalfOpen, b.State())

	// While the probe is in flight, other callers are rejected instead of
	// becoming additional probes.
	calls := 0
	err := b.Execute(ctx, succeedingOp(&calls))
	assert.True(t, IsOpen(err))
	assert.Zero(t, calls)

	close(release)
	require.NoError(t, <-probeDone)
}

func TestExecute_CallTimeoutCountsAsFailure(t *testing.T) {
	b := New("slow",
		WithFailureThreshold(1),
		WithCallTimeout(20*time.Millisecond),
	)

	err := b.Execute(context.Background(), func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.True(t, IsTimeout(err))
	assert.Equal(t, Open, b.State())
}

func TestExecute_MonitorObservesTransitions(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	var seen []State
	monitor := func(name string, state State) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "observed", name)
		seen = append(seen, state)
	}

	b := New("observed",
		WithFailureThreshold(1),
		WithResetTimeout(time.Second),
		WithHalfOpenSuccessThreshold(1),
		WithClock(clock.Now),
		WithMonitor(monitor),
	)

	ctx := context.Background()
	require.Error(t, b.Execute(ctx, func(context.Context) error { return errBoom }))
	clock.Advance(2 * time.Second)
	require.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Open, HalfOpen, Closed}, seen)
}

func TestForceOpenAndForceClose(t *testing.T) {
	b := New("manual", WithFailureThreshold(100))

	ctx := context.Background()
	calls := 0

	b.ForceOpen()
	err := b.Execute(ctx, succeedingOp(&calls))
	assert.True(t, IsOpen(err))
	assert.Zero(t, calls)

	b.ForceClose()
	require.NoError(t, b.Execute(ctx, succeedingOp(&calls)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, Closed, b.State())
}

func TestExecute_ConcurrentFailuresDoNotLoseUpdates(t *testing.T) {
	b := New("concurrent", WithFailureThreshold(1000), WithResetTimeout(time.Hour))

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(ctx, func(context.Context) error { return errBoom })
		}()
	}
	wg.Wait()

	failures, _ := b.Counts()
	assert.Equal(t, 100, failures)
	assert.Equal(t, Closed, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
