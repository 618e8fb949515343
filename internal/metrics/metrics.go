// Package metrics exposes Prometheus collectors for the pipeline service.
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
	catalogRequestsTotal       *prometheus.CounterVec
	catalogBytesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	recordsClassifiedTotal     *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	toolRunsTotal              *prometheus.CounterVec
	toolRunDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		catalogRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqc_catalog_requests_total",
				Help: "Total number of catalog requests, labeled by host and status.",
			},
			[]string{"host", "status"},
		)

		catalogBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqc_catalog_bytes_total",
				Help: "Total number of bytes fetched from the catalog, labeled by host.",
			},
			[]string{"host"},
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

		recordsClassifiedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqc_records_classified_total",
				Help: "Total number of metadata records classified, labeled by technology.",
			},
			[]string{"method"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqc_jobs_total",
				Help: "Total number of pool jobs executed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scqc_active_workers",
				Help: "Number of workers currently executing a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scqc_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		toolRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqc_tool_runs_total",
				Help: "External toolkit invocations, labeled by program and outcome.",
			},
			[]string{"program", "status"},
		)

		// Downloads run from seconds to hours.
		toolRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scqc_tool_run_duration_seconds",
				Help:    "Wall time of external toolkit invocations.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"program"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveCatalogRequest records one catalog round trip.
func ObserveCatalogRequest(rawURL string, status string, bytesFetched int) {
	host := SanitizeHost(rawURL)
	catalogRequestsTotal.WithLabelValues(host, status).Inc()
	if bytesFetched > 0 {
		catalogBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveClassification increments the per-technology record counter.
func ObserveClassification(method string) {
	recordsClassifiedTotal.WithLabelValues(method).Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveToolRun records one external program invocation. program should be
// the base name so install paths do not leak into labels.
func ObserveToolRun(program, status string, duration time.Duration) {
	toolRunsTotal.WithLabelValues(program, status).Inc()
	toolRunDurationSeconds.WithLabelValues(program).Observe(duration.Seconds())
}
