// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal       *prometheus.CounterVec
	topicsHarvestedTotal    *prometheus.CounterVec
	recordsInsertedTotal    *prometheus.CounterVec
	enrichmentLookupsTotal  *prometheus.CounterVec
	batchFlushDurationSecs  prometheus.Histogram
	activeWorkers           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_fetched_total",
				Help: "Total index and detail pages fetched, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		topicsHarvestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_topics_harvested_total",
				Help: "Total qualifying topics harvested, labeled by category.",
			},
			[]string{"category"},
		)

		recordsInsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_inserted_total",
				Help: "Total media records inserted, labeled by run mode.",
			},
			[]string{"mode"},
		)

		enrichmentLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_enrichment_lookups_total",
				Help: "Total provider lookups, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		batchFlushDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_batch_flush_duration_seconds",
				Help:    "Histogram of batch flush transaction durations.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing an item.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetch increments the page fetch counter.
func ObservePageFetch(outcome string) {
	Init()
	pagesFetchedTotal.WithLabelValues(outcome).Inc()
}

// ObserveTopics adds harvested topic counts for a category.
func ObserveTopics(category string, n int) {
	Init()
	if n > 0 {
		topicsHarvestedTotal.WithLabelValues(category).Add(float64(n))
	}
}

// ObserveInserted adds inserted record counts for a run mode.
func ObserveInserted(mode string, n int) {
	Init()
	if n > 0 {
		recordsInsertedTotal.WithLabelValues(mode).Add(float64(n))
	}
}

// ObserveEnrichment increments the provider lookup counter.
func ObserveEnrichment(provider, outcome string) {
	Init()
	enrichmentLookupsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveBatchFlush records the duration of one batch transaction.
func ObserveBatchFlush(duration time.Duration) {
	Init()
	batchFlushDurationSecs.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
