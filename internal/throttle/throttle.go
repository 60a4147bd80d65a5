// Package throttle spaces out successive fetches within one job run.
package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config bounds the randomized delay between fetches.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Throttle enforces a pseudo-random minimum gap between fetches issued
// through the same instance. Each job run gets its own Throttle; concurrent
// jobs pace themselves independently.
type Throttle struct {
	cfg   Config
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand

	mu       sync.Mutex
	lastDone time.Time
}

// Option overrides internals for tests.
type Option func(*Throttle)

// WithNow substitutes the time source.
func WithNow(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// WithSleep substitutes the sleeping function.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(t *Throttle) { t.sleep = sleep }
}

// WithSeed makes the delay sequence deterministic.
func WithSeed(seed int64) Option {
	return func(t *Throttle) { t.rng = rand.New(rand.NewSource(seed)) }
}

// New builds a Throttle. Defaults to a 2s-5s window when the config is zero.
func New(cfg Config, opts ...Option) *Throttle {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	t := &Throttle{
		cfg:   cfg,
		now:   time.Now,
		sleep: contextSleep,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Wait suspends the caller until the randomized target delay has elapsed
// since the previous Wait completed. The first call waits the full target.
// It returns the delay actually applied. Cancellation cuts the sleep short;
// Wait never fails.
func (t *Throttle) Wait(ctx context.Context) time.Duration {
	t.mu.Lock()
	target := t.cfg.MinDelay + time.Duration(t.rng.Int63n(int64(t.cfg.MaxDelay-t.cfg.MinDelay)+1))
	last := t.lastDone
	t.mu.Unlock()

	wait := target
	if !last.IsZero() {
		elapsed := t.now().Sub(last)
		wait = target - elapsed
	}

	if wait > 0 {
		t.sleep(ctx, wait)
	} else {
		wait = 0
	}

	t.mu.Lock()
	t.lastDone = t.now()
	t.mu.Unlock()
	return wait
}

// MarkFetchDone restarts the delay window from the end of a fetch, so the
// gap is measured fetch-end to fetch-start rather than wait to wait.
func (t *Throttle) MarkFetchDone() {
	t.mu.Lock()
	t.lastDone = t.now()
	t.mu.Unlock()
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
