package scrape

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryPolicy decides whether and when a failed fetch attempt is retried.
// It is injected into the retrying fetcher so tests can substitute a
// deterministic policy.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used for page and post fetches.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// ShouldRetry reports whether another attempt is allowed after err.
// attempt is 1-based and counts the attempt that just failed.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return true
}

// Backoff returns the jittered wait before attempt+1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
