// Package metrics provides Prometheus metrics for aggregation runs.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Item outcomes.
const (
	OutcomePriced  = "priced"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	// RunsTotal counts aggregation runs by result.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleaprice_runs_total",
			Help: "Total number of aggregation runs",
		},
		[]string{"result"},
	)

	// RunDuration is a histogram of run durations.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleaprice_run_duration_seconds",
			Help:    "Duration of aggregation runs",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// ItemsTotal counts processed items by outcome.
	ItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleaprice_items_total",
			Help: "Total number of items processed",
		},
		[]string{"outcome"},
	)

	// PublishFailuresTotal counts publisher errors.
	PublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleaprice_publish_failures_total",
			Help: "Total number of failed publish attempts",
		},
		[]string{"publisher"},
	)

	// LastSuccess is the unix timestamp of the last successful run.
	LastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleaprice_last_success_timestamp",
			Help: "Unix timestamp of the last successful run",
		},
	)

	// HistorySlot is the ring slot the next run will write.
	HistorySlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleaprice_history_slot",
			Help: "Ring slot the next run will write",
		},
	)
)

var initOnce sync.Once

// Init registers all metrics with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RunsTotal,
			RunDuration,
			ItemsTotal,
			PublishFailuresTotal,
			LastSuccess,
			HistorySlot,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun records a finished run.
func RecordRun(duration time.Duration, err error) {
	RunDuration.Observe(duration.Seconds())
	if err != nil {
		RunsTotal.WithLabelValues(ResultFailure).Inc()
		return
	}
	RunsTotal.WithLabelValues(ResultSuccess).Inc()
	LastSuccess.SetToCurrentTime()
}

// RecordItems adds per-outcome item counts.
func RecordItems(priced, skipped, failed int) {
	ItemsTotal.WithLabelValues(OutcomePriced).Add(float64(priced))
	ItemsTotal.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
	ItemsTotal.WithLabelValues(OutcomeFailed).Add(float64(failed))
}

// RecordPublishFailure records a failed publish.
func RecordPublishFailure(publisher string) {
	PublishFailuresTotal.WithLabelValues(publisher).Inc()
}

// RecordSlot records the ring slot the next run will write.
func RecordSlot(next int) {
	HistorySlot.Set(float64(next))
}
