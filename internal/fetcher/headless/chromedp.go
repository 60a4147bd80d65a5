// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Fetcher implements scrape.Fetcher using chromedp and headless Chrome.
// The browser allocator lives for the Fetcher's lifetime; each Fetch runs
// in its own tab context that is cancelled on every exit path.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the fully rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return scrape.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, request)
	if err != nil {
		return scrape.FetchResponse{}, classifyHeadlessError(request.URL, taskCtx, err)
	}

	status, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if status >= 400 {
		return scrape.FetchResponse{}, &scrape.FetchError{
			Kind:       scrape.FetchErrStatus,
			URL:        request.URL,
			StatusCode: status,
		}
	}

	return scrape.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, request scrape.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(request.UserAgent),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &scrape.FetchError{
			Kind: scrape.FetchErrTimeout,
			Err:  fmt.Errorf("headless slot wait canceled: %w", ctx.Err()),
		}
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func classifyHeadlessError(url string, ctx context.Context, err error) error {
	kind := scrape.FetchErrNetwork
	if ctx.Err() != nil {
		kind = scrape.FetchErrTimeout
	}
	return &scrape.FetchError{Kind: kind, URL: url, Err: err}
}

// responseMeta captures the main document's response status from CDP events.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
