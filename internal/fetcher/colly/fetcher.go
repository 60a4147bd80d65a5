// Package collyfetcher implements scrape.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// defaultUserAgents is rotated across requests so repeated fetches do not
// present an identical fingerprint.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// Config controls collector behavior.
type Config struct {
	UserAgents []string
	Timeout    time.Duration
}

// Fetcher fetches a single page over plain HTTP using a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	uaIndex       atomic.Uint64
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses and transport failures
// come back as *scrape.FetchError so the retry policy can classify them.
func (f *Fetcher) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	var (
		result   scrape.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.UserAgent = f.nextUserAgent(request)
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = scrape.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &scrape.FetchError{
				Kind:       scrape.FetchErrStatus,
				URL:        request.URL,
				StatusCode: r.StatusCode,
				Err:        err,
			}
			return
		}
		fetchErr = classifyTransportError(request.URL, err)
	})

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return scrape.FetchResponse{}, err
	}
	if fetchErr != nil {
		return scrape.FetchResponse{}, fetchErr
	}
	if result.StatusCode == 0 {
		return scrape.FetchResponse{}, &scrape.FetchError{
			Kind: scrape.FetchErrNetwork,
			URL:  request.URL,
			Err:  errors.New("no response received"),
		}
	}
	return result, nil
}

func (f *Fetcher) nextUserAgent(request scrape.FetchRequest) string {
	if request.UserAgent != "" {
		return request.UserAgent
	}
	idx := f.uaIndex.Add(1)
	return f.cfg.UserAgents[int(idx)%len(f.cfg.UserAgents)]
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &scrape.FetchError{
			Kind: scrape.FetchErrTimeout,
			URL:  url,
			Err:  fmt.Errorf("fetch aborted: %w", ctx.Err()),
		}
	case err := <-done:
		// Colly surfaces response errors both through OnError and Visit's
		// return value; the callback classification is richer, so it wins.
		if err != nil && *fetchErr == nil {
			return classifyTransportError(url, err)
		}
		return nil
	}
}

func classifyTransportError(url string, err error) error {
	kind := scrape.FetchErrNetwork
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = scrape.FetchErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = scrape.FetchErrTimeout
	}
	return &scrape.FetchError{Kind: kind, URL: url, Err: err}
}
