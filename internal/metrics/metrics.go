// Package metrics exposes Prometheus instrumentation for the crawl and
// export pipelines.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlinv",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Marketplace page fetches by method and status class.",
	}, []string{"method", "status_class"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mlinv",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Marketplace fetch latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	cardsAssembled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlinv",
		Subsystem: "crawl",
		Name:      "cards_total",
		Help:      "Cards assembled per crawl pass, by disposition.",
	}, []string{"disposition"})

	exportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlinv",
		Subsystem: "export",
		Name:      "runs_total",
		Help:      "Export runs by outcome.",
	}, []string{"outcome"})

	exportSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlinv",
		Subsystem: "export",
		Name:      "skipped_listings_total",
		Help:      "Listings skipped during transformation, by reason code.",
	}, []string{"reason"})

	exportUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mlinv",
		Subsystem: "export",
		Name:      "upserted_listings_total",
		Help:      "New listings upserted to the backend.",
	})
)

// RecordFetch records one page fetch. statusCode 0 means a transport error.
func RecordFetch(method string, statusCode int, elapsed time.Duration) {
	class := "error"
	if statusCode > 0 {
		class = strconv.Itoa(statusCode/100) + "xx"
	}
	fetchRequests.WithLabelValues(method, class).Inc()
	fetchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordCard counts one assembled card by disposition
// (ready, needs_enrichment, filtered).
func RecordCard(disposition string) {
	cardsAssembled.WithLabelValues(disposition).Inc()
}

// RecordExportRun counts one export run outcome (ok, failed).
func RecordExportRun(outcome string) {
	exportRuns.WithLabelValues(outcome).Inc()
}

// RecordSkips counts transformation skips by reason code.
func RecordSkips(reason string, n int) {
	exportSkips.WithLabelValues(reason).Add(float64(n))
}

// RecordUpserts counts listings upserted in a run.
func RecordUpserts(n int) {
	exportUpserts.Add(float64(n))
}
