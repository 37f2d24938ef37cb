package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	computationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "analytics_service",
		Subsystem: "compute",
		Name:      "computations_total",
		Help:      "Derived-artifact computations by kind and outcome.",
	}, []string{"kind", "outcome"})
	chartBuiltGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "analytics_service",
		Subsystem: "compute",
		Name:      "last_chart_built_timestamp_seconds",
		Help:      "Unix timestamp of the most recent chart cache build.",
	})
	scoreComputedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "analytics_service",
		Subsystem: "compute",
		Name:      "last_score_computed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent fitness score upsert.",
	})
	backfillDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "analytics_service",
		Subsystem: "backfill",
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock duration of backfill batches.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	backfillUsersProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "analytics_service",
		Subsystem: "backfill",
		Name:      "users_processed_total",
		Help:      "Users processed across backfill batches.",
	})
)

func init() {
	prometheus.MustRegister(
		computationCounter,
		chartBuiltGauge,
		scoreComputedGauge,
		backfillDuration,
		backfillUsersProcessed,
	)
}

// RecordComputation counts one computation of the given kind
// (chart, fingerprint, fitness_score) and outcome (ok, insufficient_data, error).
func RecordComputation(kind, outcome string) {
	computationCounter.WithLabelValues(kind, outcome).Inc()
}

// RecordChartBuilt updates the chart build watermark gauge.
func RecordChartBuilt(ts time.Time) {
	if ts.IsZero() {
		return
	}
	chartBuiltGauge.Set(float64(ts.Unix()))
}

// RecordScoreComputed updates the score watermark gauge.
func RecordScoreComputed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	scoreComputedGauge.Set(float64(ts.Unix()))
}

// RecordBackfillBatch records one finished backfill batch.
func RecordBackfillBatch(duration time.Duration, usersProcessed int) {
	backfillDuration.Observe(duration.Seconds())
	backfillUsersProcessed.Add(float64(usersProcessed))
}
