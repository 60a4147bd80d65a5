package headless

import (
	"context"
	"net/http"
	"testing"

	"github.com/chromedp/cdproto/network"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()
	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
}

func TestResponseMetaCapturesDocumentOnly(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://example.com/img.png"},
	})
	status, url := meta.snapshotWithFallbacks("https://example.com/", "")
	if status != http.StatusOK || url != "https://example.com/" {
		t.Fatalf("expected image event to be ignored, got %d %s", status, url)
	}

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "https://example.com/blog/"},
	})
	status, url = meta.snapshotWithFallbacks("https://example.com/", "")
	if status != 301 || url != "https://example.com/blog/" {
		t.Fatalf("unexpected snapshot %d %s", status, url)
	}
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	status, url := meta.snapshotWithFallbacks("https://req.example", "https://final.example")
	if status != http.StatusOK {
		t.Fatalf("expected fallback status 200, got %d", status)
	}
	if url != "https://final.example" {
		t.Fatalf("expected final url fallback, got %s", url)
	}
}

func TestAcquireRespectsCancellation(t *testing.T) {
	t.Parallel()

	f := &Fetcher{limiter: make(chan struct{}, 1)}
	f.limiter <- struct{}{} // slot taken

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.acquire(ctx)
	if err == nil {
		t.Fatal("expected acquire to fail on canceled context")
	}
	if kind := scrape.FetchErrorKindOf(err); kind != scrape.FetchErrTimeout {
		t.Fatalf("expected timeout kind, got %q", kind)
	}
}

func TestNoopFetcherAlwaysErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewNoop().Fetch(context.Background(), scrape.FetchRequest{URL: "https://example.com"}); err == nil {
		t.Fatal("expected noop fetcher to error")
	}
}
