// Package metrics exposes Prometheus collectors for the existence sweeper.
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
	existenceChecksTotal        *prometheus.CounterVec
	existenceCheckDuration      *prometheus.HistogramVec
	existenceStoreErrorsTotal   *prometheus.CounterVec
	existenceSuspects           prometheus.Gauge
	existenceSessionRecycles    prometheus.Counter
	fetchResponsesTotal         *prometheus.CounterVec
	fetchRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		existenceChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "existence_checks_total",
				Help: "Total number of resource checks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		existenceCheckDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "existence_check_duration_seconds",
				Help:    "Histogram of per-resource check latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		existenceStoreErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "existence_store_errors_total",
				Help: "Total number of failed status writes, labeled by operation.",
			},
			[]string{"op"},
		)

		existenceSuspects = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "existence_suspects",
				Help: "Number of probably deleted resources found by the running sweep.",
			},
		)

		existenceSessionRecycles = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "existence_session_recycles_total",
				Help: "Total number of fetch session disposals.",
			},
		)

		fetchResponsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_responses_total",
				Help: "Total number of fetch responses, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		fetchRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// ObserveCheck records the outcome and latency of one resource check.
func ObserveCheck(outcome string, duration time.Duration) {
	existenceChecksTotal.WithLabelValues(outcome).Inc()
	existenceCheckDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveStoreError increments the failed write counter for op.
func ObserveStoreError(op string) {
	existenceStoreErrorsTotal.WithLabelValues(op).Inc()
}

// SetSuspects publishes the current suspect count.
func SetSuspects(n int) {
	existenceSuspects.Set(float64(n))
}

// ObserveSessionRecycle increments the session recycle counter.
func ObserveSessionRecycle() {
	existenceSessionRecycles.Inc()
}

// ObserveFetch records a fetch response for the given URL.
func ObserveFetch(rawURL string, code int) {
	fetchResponsesTotal.WithLabelValues(SanitizeSite(rawURL), strconv.Itoa(code)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	fetchRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
