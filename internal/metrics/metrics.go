// Package metrics exposes Prometheus collectors for the boardkeeper service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	wipePagesTotal             *prometheus.CounterVec
	wipeRowsScannedTotal       *prometheus.CounterVec
	wipeRowsDeletedTotal       *prometheus.CounterVec
	sourcesResolvedTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		wipePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardkeeper_wipe_pages_total",
				Help: "Total wipe pages executed, labeled by table and dry-run mode.",
			},
			[]string{"table", "dry_run"},
		)

		wipeRowsScannedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardkeeper_wipe_rows_scanned_total",
				Help: "Total rows examined by wipe pages, labeled by table.",
			},
			[]string{"table"},
		)

		wipeRowsDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardkeeper_wipe_rows_deleted_total",
				Help: "Total rows deleted, or counted under dry-run, labeled by table and dry-run mode.",
			},
			[]string{"table", "dry_run"},
		)

		sourcesResolvedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardkeeper_sources_resolved_total",
				Help: "Total source identity resolutions, labeled by provider.",
			},
			[]string{"provider"},
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
				Help:    "Histogram of HTTP request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveWipePage records the outcome of one wipe page.
func ObserveWipePage(table string, dryRun bool, scanned, deleted int) {
	Init()
	dr := strconv.FormatBool(dryRun)
	wipePagesTotal.WithLabelValues(table, dr).Inc()
	wipeRowsScannedTotal.WithLabelValues(table).Add(float64(scanned))
	wipeRowsDeletedTotal.WithLabelValues(table, dr).Add(float64(deleted))
}

// ObserveSourceResolved counts one identity resolution per provider family.
func ObserveSourceResolved(provider string) {
	Init()
	sourcesResolvedTotal.WithLabelValues(provider).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}
