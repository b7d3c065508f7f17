// Package metrics exposes Prometheus collectors for searches, fetches and extraction.
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
	searchRequestsTotal        *prometheus.CounterVec
	searchDurationSeconds      *prometheus.HistogramVec
	fetchPagesTotal            *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      prometheus.Histogram
	activeQueries              prometheus.Gauge

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpforge_search_requests_total",
				Help: "Upstream search calls, labeled by search type and outcome.",
			},
			[]string{"type", "outcome"},
		)

		searchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serpforge_search_duration_seconds",
				Help:    "Upstream search latency including retries.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"type"},
		)

		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpforge_fetch_pages_total",
				Help: "Page fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpforge_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpforge_extractions_total",
				Help: "Extraction outcomes, labeled by winning strategy or \"none\".",
			},
			[]string{"method"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serpforge_cache_lookups_total",
				Help: "Search response cache lookups, labeled by result.",
			},
			[]string{"result"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "serpforge_rate_limit_delay_seconds",
				Help:    "Time spent waiting for the upstream rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		activeQueries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "serpforge_active_queries",
				Help: "Number of single-query pipelines currently running.",
			},
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

// ObserveSearch records one upstream search call.
func ObserveSearch(searchType, outcome string, duration time.Duration) {
	Init()
	searchRequestsTotal.WithLabelValues(searchType, outcome).Inc()
	searchDurationSeconds.WithLabelValues(searchType).Observe(duration.Seconds())
}

// ObserveFetch records one page fetch.
func ObserveFetch(site, outcome string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	fetchPagesTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveExtraction records which strategy produced content.
func ObserveExtraction(method string) {
	Init()
	if method == "" {
		method = "none"
	}
	extractionsTotal.WithLabelValues(method).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// IncActiveQueries increments the running pipelines gauge.
func IncActiveQueries() {
	Init()
	activeQueries.Inc()
}

// DecActiveQueries decrements the running pipelines gauge.
func DecActiveQueries() {
	Init()
	activeQueries.Dec()
}
