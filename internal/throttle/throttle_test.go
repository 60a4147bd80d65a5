package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTime keeps a manual clock and records sleeps against it.
type fakeTime struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Unix(1000, 0)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Sleep(_ context.Context, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestThrottle(cfg Config, ft *fakeTime) *Throttle {
	return New(cfg, WithNow(ft.Now), WithSleep(ft.Sleep), WithSeed(42))
}

func TestWaitFirstCallAppliesFullTarget(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	tr := newTestThrottle(Config{MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}, ft)

	applied := tr.Wait(context.Background())
	require.GreaterOrEqual(t, applied, 2*time.Second)
	require.LessOrEqual(t, applied, 5*time.Second)
	require.Len(t, ft.sleeps, 1)
}

func TestWaitEnforcesLowerBoundBetweenCalls(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	cfg := Config{MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	tr := newTestThrottle(cfg, ft)

	start := ft.Now()
	tr.Wait(context.Background())
	firstDone := ft.Now()
	require.GreaterOrEqual(t, firstDone.Sub(start), cfg.MinDelay)

	// Immediately asking again must wait at least MinDelay from the last wait.
	tr.Wait(context.Background())
	require.GreaterOrEqual(t, ft.Now().Sub(firstDone), cfg.MinDelay)
}

func TestWaitSkipsSleepWhenEnoughTimePassed(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	tr := newTestThrottle(Config{MinDelay: time.Second, MaxDelay: time.Second}, ft)

	tr.Wait(context.Background())
	sleepsBefore := len(ft.sleeps)

	// Simulate a long fetch: far more wall time elapsed than the target delay.
	ft.Advance(10 * time.Second)

	applied := tr.Wait(context.Background())
	require.Zero(t, applied)
	require.Len(t, ft.sleeps, sleepsBefore)
}

func TestMarkFetchDoneRestartsWindow(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	tr := newTestThrottle(Config{MinDelay: 2 * time.Second, MaxDelay: 2 * time.Second}, ft)

	tr.Wait(context.Background())
	ft.Advance(3 * time.Second) // fetch ran for 3s
	tr.MarkFetchDone()

	applied := tr.Wait(context.Background())
	require.Equal(t, 2*time.Second, applied)
}

func TestWaitZeroConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	ft := newFakeTime()
	tr := newTestThrottle(Config{}, ft)

	applied := tr.Wait(context.Background())
	require.GreaterOrEqual(t, applied, 2*time.Second)
	require.LessOrEqual(t, applied, 5*time.Second)
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	tr := New(Config{MinDelay: time.Minute, MaxDelay: time.Minute}, WithSeed(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		tr.Wait(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return promptly after cancellation")
	}
}
