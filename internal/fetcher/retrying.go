// Package fetcher composes the concrete fetchers with the throttle, retry,
// and headless-promotion policies applied to every page fetch.
package fetcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/metrics"
	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Retrying decorates a Fetcher with rate limiting, a per-call timeout, and
// retry-with-backoff. Every attempt, including retries, pays one throttle
// wait first.
type Retrying struct {
	inner    scrape.Fetcher
	throttle scrape.Throttle
	policy   scrape.RetryPolicy
	timeout  time.Duration
	sleep    func(ctx context.Context, d time.Duration)
	logger   *zap.Logger
}

// NewRetrying builds the decorator.
func NewRetrying(
	inner scrape.Fetcher,
	throttle scrape.Throttle,
	policy scrape.RetryPolicy,
	timeout time.Duration,
	logger *zap.Logger,
) *Retrying {
	if policy.MaxAttempts <= 0 {
		policy = scrape.DefaultRetryPolicy()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		inner:    inner,
		throttle: throttle,
		policy:   policy,
		timeout:  timeout,
		sleep:    contextSleep,
		logger:   logger,
	}
}

// Fetch runs the attempt loop. It returns the last classified error once the
// policy gives up.
func (r *Retrying) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if r.throttle != nil {
			delay := r.throttle.Wait(ctx)
			metrics.ObserveThrottleDelay(request.URL, delay)
		}
		if ctx.Err() != nil {
			return scrape.FetchResponse{}, &scrape.FetchError{
				Kind: scrape.FetchErrTimeout,
				URL:  request.URL,
				Err:  ctx.Err(),
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		resp, err := r.inner.Fetch(attemptCtx, request)
		cancel()
		r.markFetchDone()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !r.policy.ShouldRetry(err, attempt) {
			break
		}
		backoff := r.policy.Backoff(attempt)
		r.logger.Debug("fetch attempt failed, backing off",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		r.sleep(ctx, backoff)
	}
	return scrape.FetchResponse{}, lastErr
}

// markFetchDone restarts the throttle window from the end of the request,
// so the inter-fetch gap excludes time spent on the wire.
func (r *Retrying) markFetchDone() {
	if marker, ok := r.throttle.(interface{ MarkFetchDone() }); ok {
		marker.MarkFetchDone()
	}
}

func contextSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
