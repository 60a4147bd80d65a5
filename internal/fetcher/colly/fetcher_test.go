package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello")
	require.False(t, resp.UsedHeadless)
}

func TestFetchNotFoundIsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: srv.URL})
	require.Error(t, err)

	var fe *scrape.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, scrape.FetchErrStatus, fe.Kind)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.False(t, fe.Retryable())
}

func TestFetchServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: srv.URL})

	var fe *scrape.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, scrape.FetchErrStatus, fe.Kind)
	require.True(t, fe.Retryable())
}

func TestFetchConnectionRefusedIsNetworkError(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: "http://127.0.0.1:1/"})
	require.Error(t, err)

	var fe *scrape.FetchError
	require.ErrorAs(t, err, &fe)
	require.Contains(t, []scrape.FetchErrorKind{scrape.FetchErrNetwork, scrape.FetchErrTimeout}, fe.Kind)
	require.True(t, fe.Retryable())
}

func TestFetchContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 30 * time.Second})
	_, err := f.Fetch(ctx, scrape.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.Equal(t, scrape.FetchErrTimeout, scrape.FetchErrorKindOf(err))
}

func TestFetchRotatesUserAgents(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[string]struct{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.UserAgent()] = struct{}{}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{UserAgents: []string{"agent-a", "agent-b"}, Timeout: 5 * time.Second})
	for i := 0; i < 4; i++ {
		_, err := f.Fetch(context.Background(), scrape.FetchRequest{URL: srv.URL})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	err := classifyTransportError("https://example.com", context.DeadlineExceeded)
	require.Equal(t, scrape.FetchErrTimeout, scrape.FetchErrorKindOf(err))

	err = classifyTransportError("https://example.com", errors.New("connection reset"))
	require.Equal(t, scrape.FetchErrNetwork, scrape.FetchErrorKindOf(err))
}
