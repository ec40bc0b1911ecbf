package metrics

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "kalelend"

// KaleLendMetrics tracks engine operations and platform totals.
type KaleLendMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	totals      *prometheus.GaugeVec
	adjustments *prometheus.CounterVec
	oracleFails *prometheus.CounterVec

	opCounter     metric.Int64Counter
	opLatency     metric.Float64Histogram
	adjustCounter metric.Int64Counter
}

var (
	kaleLendOnce     sync.Once
	kaleLendRegistry *KaleLendMetrics
)

// KaleLend returns the lazily registered metrics set.
func KaleLend() *KaleLendMetrics {
	kaleLendOnce.Do(func() {
		kaleLendRegistry = newCollectors()
		prometheus.MustRegister(
			kaleLendRegistry.operations,
			kaleLendRegistry.latency,
			kaleLendRegistry.totals,
			kaleLendRegistry.adjustments,
			kaleLendRegistry.oracleFails,
		)
		kaleLendRegistry.initMeter(otel.GetMeterProvider())
	})
	return kaleLendRegistry
}

func newCollectors() *KaleLendMetrics {
	return &KaleLendMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kalelend_operations_total",
			Help: "Engine operations by name and outcome kind.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kalelend_operation_seconds",
			Help:    "Wall time spent executing and committing engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		totals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kalelend_platform_total",
			Help: "Platform aggregates in base units (staked, borrowed, collateral, fees).",
		}, []string{"kind"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kalelend_adjustments_total",
			Help: "Auto-adjustment checks by result.",
		}, []string{"result"}),
		oracleFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kalelend_oracle_failures_total",
			Help: "Price lookups that failed by asset.",
		}, []string{"asset"}),
	}
}

// initMeter mirrors the operation and adjustment series as otel instruments.
// Instrument errors fall back to a no-op meter.
func (m *KaleLendMetrics) initMeter(provider metric.MeterProvider) {
	meter := provider.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	ops, err := meter.Int64Counter("kalelend.operations",
		metric.WithDescription("Engine operations by name and outcome kind."))
	if err != nil {
		ops, _ = fallback.Int64Counter("kalelend.operations")
	}
	latency, err := meter.Float64Histogram("kalelend.operation.duration",
		metric.WithDescription("Wall time spent executing and committing engine operations."),
		metric.WithUnit("s"))
	if err != nil {
		latency, _ = fallback.Float64Histogram("kalelend.operation.duration")
	}
	adjust, err := meter.Int64Counter("kalelend.adjustments",
		metric.WithDescription("Auto-adjustment checks by result."))
	if err != nil {
		adjust, _ = fallback.Int64Counter("kalelend.adjustments")
	}
	m.opCounter = ops
	m.opLatency = latency
	m.adjustCounter = adjust
}

// ObserveOperation records one engine call. outcome is "ok" or an error kind.
func (m *KaleLendMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	if m.opCounter != nil {
		m.opCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
	if m.opLatency != nil {
		m.opLatency.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(attribute.String("op", op)))
	}
}

// SetTotal publishes a platform aggregate such as "staked" or "borrowed".
func (m *KaleLendMetrics) SetTotal(kind string, value *big.Int) {
	if m == nil || value == nil {
		return
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	m.totals.WithLabelValues(kind).Set(f)
}

// ObserveAdjustment counts an adjustment check.
func (m *KaleLendMetrics) ObserveAdjustment(adjusted bool) {
	if m == nil {
		return
	}
	result := "unchanged"
	if adjusted {
		result = "adjusted"
	}
	m.adjustments.WithLabelValues(result).Inc()
	if m.adjustCounter != nil {
		m.adjustCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// ObserveOracleFailure counts a failed price lookup.
func (m *KaleLendMetrics) ObserveOracleFailure(asset string) {
	if m == nil {
		return
	}
	if asset == "" {
		asset = "unknown"
	}
	m.oracleFails.WithLabelValues(asset).Inc()
}
