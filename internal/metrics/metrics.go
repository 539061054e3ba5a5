// Package metrics exposes Prometheus collectors for the sitemap crawler.
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
	sitemapFetchesTotal           *prometheus.CounterVec
	sitemapBytesTotal             *prometheus.CounterVec
	sitemapFetchDurationSeconds   *prometheus.HistogramVec
	sitemapNodesTotal             *prometheus.CounterVec
	crawlerRecordsTotal           *prometheus.CounterVec
	crawlerRunsTotal              *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	crawlerActiveWorkers          prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sitemapFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_fetches_total",
				Help: "Total number of sitemap and robots.txt fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		sitemapBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_bytes_total",
				Help: "Total number of decompressed bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		sitemapFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitemap_fetch_duration_seconds",
				Help:    "Histogram of sitemap fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		sitemapNodesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_nodes_total",
				Help: "Sitemap nodes seen by the scheduler, labeled by outlet and outcome.",
			},
			[]string{"outlet", "outcome"},
		)

		crawlerRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_records_total",
				Help: "Classified records emitted, labeled by outlet and category.",
			},
			[]string{"outlet", "category"},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by outlet and status.",
			},
			[]string{"outlet", "status"},
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

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently fetching a sitemap.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveFetch records one fetch attempt. status is "ok" or a fetch error kind.
func ObserveFetch(site string, status string, bytesFetched int, duration time.Duration) {
	Init()
	sanitizedSite := SanitizeSite(site)
	sitemapFetchesTotal.WithLabelValues(sanitizedSite, status).Inc()
	sitemapFetchDurationSeconds.WithLabelValues(sanitizedSite).Observe(duration.Seconds())
	if bytesFetched > 0 {
		sitemapBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveNode increments the node counter for an outcome such as "pruned".
func ObserveNode(outlet, outcome string) {
	Init()
	sitemapNodesTotal.WithLabelValues(outlet, outcome).Inc()
}

// ObserveRecord increments the record counter.
func ObserveRecord(outlet, category string) {
	Init()
	crawlerRecordsTotal.WithLabelValues(outlet, category).Inc()
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(outlet, status string) {
	Init()
	crawlerRunsTotal.WithLabelValues(outlet, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
