// Package metrics exposes Prometheus collectors for the scraping service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperPagesTotal           *prometheus.CounterVec
	scraperPostsTotal           *prometheus.CounterVec
	scraperJobsTotal            *prometheus.CounterVec
	scraperActiveRunners        prometheus.Gauge
	scraperThrottleDelaySeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of listing pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scraperPostsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_posts_total",
				Help: "Total number of posts processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of jobs reaching a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		scraperActiveRunners = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_runners",
				Help: "Number of job runners currently executing.",
			},
		)

		scraperThrottleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_throttle_delay_seconds",
				Help:    "Histogram of throttle wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for one listing fetch.
func ObservePage(site, outcome string) {
	scraperPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObservePost increments the post counter. Outcomes are persisted, skipped,
// and failed.
func ObservePost(outcome string) {
	scraperPostsTotal.WithLabelValues(outcome).Inc()
}

// ObserveJob increments the terminal-job counter for the given status.
func ObserveJob(status string) {
	scraperJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveRunners increments the active runners gauge.
func IncActiveRunners() {
	scraperActiveRunners.Inc()
}

// DecActiveRunners decrements the active runners gauge.
func DecActiveRunners() {
	scraperActiveRunners.Dec()
}

// ObserveThrottleDelay records the duration of a throttle wait.
func ObserveThrottleDelay(site string, duration time.Duration) {
	scraperThrottleDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
