package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, g.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestRecordComputationIncrementsByKindAndOutcome(t *testing.T) {
	before := counterValue(t, computationCounter.WithLabelValues("chart", "ok"))

	RecordComputation("chart", "ok")
	RecordComputation("chart", "ok")
	RecordComputation("fingerprint", "insufficient_data")

	require.Equal(t, before+2, counterValue(t, computationCounter.WithLabelValues("chart", "ok")))
	require.GreaterOrEqual(t, counterValue(t, computationCounter.WithLabelValues("fingerprint", "insufficient_data")), 1.0)
}

func TestWatermarkGaugesIgnoreZeroTimes(t *testing.T) {
	ts := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)

	RecordChartBuilt(ts)
	require.Equal(t, float64(ts.Unix()), gaugeValue(t, chartBuiltGauge))

	RecordChartBuilt(time.Time{})
	require.Equal(t, float64(ts.Unix()), gaugeValue(t, chartBuiltGauge), "zero time leaves the watermark alone")

	RecordScoreComputed(ts)
	require.Equal(t, float64(ts.Unix()), gaugeValue(t, scoreComputedGauge))
}

func TestRecordBackfillBatch(t *testing.T) {
	usersBefore := counterValue(t, backfillUsersProcessed)

	RecordBackfillBatch(3*time.Second, 7)

	require.Equal(t, usersBefore+7, counterValue(t, backfillUsersProcessed))

	metric := &dto.Metric{}
	require.NoError(t, backfillDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	require.GreaterOrEqual(t, hist.GetSampleCount(), uint64(1))
}
