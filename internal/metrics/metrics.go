// Package metrics exposes Prometheus collectors for the tracker service.
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
	applicationsInsertedTotal prometheus.Counter
	applicationsSkippedTotal  prometheus.Counter
	cardsSkippedTotal         *prometheus.CounterVec
	scrapeCyclesTotal         *prometheus.CounterVec
	scrapeCycleDuration       prometheus.Histogram
	reconcilePassesTotal      *prometheus.CounterVec
	confirmationsTotal        prometheus.Counter
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		applicationsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_applications_inserted_total",
			Help: "Total number of application records inserted by merges.",
		})

		applicationsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_applications_skipped_total",
			Help: "Total number of candidate records skipped as duplicates during merges.",
		})

		cardsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_cards_skipped_total",
				Help: "Total number of listing cards or messages dropped, labeled by reason.",
			},
			[]string{"reason"},
		)

		scrapeCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_scrape_cycles_total",
				Help: "Total number of scrape cycles, labeled by outcome.",
			},
			[]string{"status"},
		)

		scrapeCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_scrape_cycle_duration_seconds",
			Help:    "Histogram of end-to-end scrape cycle durations.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		})

		reconcilePassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_reconcile_passes_total",
				Help: "Total number of reconcile passes, labeled by outcome.",
			},
			[]string{"status"},
		)

		confirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "tracker_confirmations_total",
			Help: "Total number of applications transitioned to Confirmed.",
		})

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMerge records the outcome of one candidate batch merge.
func ObserveMerge(inserted, skipped int) {
	applicationsInsertedTotal.Add(float64(inserted))
	applicationsSkippedTotal.Add(float64(skipped))
}

// ObserveSkip increments the skip counter for the given reason.
func ObserveSkip(reason string) {
	cardsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveScrapeCycle records one scrape cycle outcome and duration.
func ObserveScrapeCycle(status string, duration time.Duration) {
	scrapeCyclesTotal.WithLabelValues(status).Inc()
	scrapeCycleDuration.Observe(duration.Seconds())
}

// ObserveReconcilePass records one reconcile pass outcome and how many
// confirmations it produced.
func ObserveReconcilePass(status string, confirmed int) {
	reconcilePassesTotal.WithLabelValues(status).Inc()
	if confirmed > 0 {
		confirmationsTotal.Add(float64(confirmed))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
