package metrics

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestKaleLendMetricsObserve(t *testing.T) {
	m := KaleLend()
	if KaleLend() != m {
		t.Fatalf("expected singleton registry")
	}

	before := testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok"))
	m.ObserveOperation("stake", "", 5*time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")); got != before+1 {
		t.Fatalf("expected counter to advance, got %v", got)
	}

	m.SetTotal("staked", big.NewInt(1_500))
	if got := testutil.ToFloat64(m.totals.WithLabelValues("staked")); got != 1_500 {
		t.Fatalf("unexpected gauge value %v", got)
	}

	m.ObserveAdjustment(true)
	m.ObserveOracleFailure("")
	if got := testutil.ToFloat64(m.oracleFails.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("expected oracle failure count, got %v", got)
	}

	var nilMetrics *KaleLendMetrics
	nilMetrics.ObserveOperation("stake", "ok", 0)
	nilMetrics.SetTotal("staked", big.NewInt(1))
}

func TestOperationLatencyHistogram(t *testing.T) {
	m := KaleLend()
	observer := m.latency.WithLabelValues("repay")
	before := histogramCount(t, observer)

	m.ObserveOperation("repay", "ok", 20*time.Millisecond)
	m.ObserveOperation("repay", "insufficient_collateral", 40*time.Millisecond)

	if got := histogramCount(t, observer); got != before+2 {
		t.Fatalf("expected two more samples, got %d", got-before)
	}
}

func histogramCount(t *testing.T, observer prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := observer.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer is not a metric")
	}
	var out dto.Metric
	if err := metric.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return out.GetHistogram().GetSampleCount()
}

func TestKaleLendMeterInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := newCollectors()
	m.initMeter(provider)
	m.ObserveOperation("borrow", "ok", 10*time.Millisecond)
	m.ObserveOperation("borrow", "position_active", 5*time.Millisecond)
	m.ObserveAdjustment(false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	seen := make(map[string]metricdata.Aggregation)
	for _, scope := range rm.ScopeMetrics {
		require.Equal(t, meterName, scope.Scope.Name)
		for _, metric := range scope.Metrics {
			seen[metric.Name] = metric.Data
		}
	}

	ops, ok := seen["kalelend.operations"].(metricdata.Sum[int64])
	require.True(t, ok, "operations counter missing")
	require.Len(t, ops.DataPoints, 2)
	var total int64
	for _, point := range ops.DataPoints {
		total += point.Value
	}
	require.EqualValues(t, 2, total)

	latency, ok := seen["kalelend.operation.duration"].(metricdata.Histogram[float64])
	require.True(t, ok, "latency histogram missing")
	require.Len(t, latency.DataPoints, 1)
	require.EqualValues(t, 2, latency.DataPoints[0].Count)

	adjust, ok := seen["kalelend.adjustments"].(metricdata.Sum[int64])
	require.True(t, ok, "adjustments counter missing")
	require.Len(t, adjust.DataPoints, 1)
	result, _ := adjust.DataPoints[0].Attributes.Value("result")
	require.Equal(t, "unchanged", result.AsString())
}
