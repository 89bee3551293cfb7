package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all application metrics.
type Metrics struct {
	chunkOpsTotal      *prometheus.CounterVec
	chunkOpDuration    *prometheus.HistogramVec
	chunkOpErrors      *prometheus.CounterVec
	chunkBytes         *prometheus.CounterVec
	selfEncryptionOps  *prometheus.CounterVec
	selfEncryptionTime *prometheus.HistogramVec
	selfEncryptionSize *prometheus.HistogramVec
	packLevels         prometheus.Histogram
	goroutines         prometheus.Gauge
	memoryAllocBytes   prometheus.Gauge
}

// NewMetrics creates a new metrics instance on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom
// registry. This is useful for testing to avoid registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		chunkOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_operations_total",
				Help: "Total number of chunk store operations",
			},
			[]string{"operation"}, // "put" or "get"
		),
		chunkOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunk_operation_duration_seconds",
				Help:    "Chunk store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		chunkOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_operation_errors_total",
				Help: "Total number of chunk store operation errors",
			},
			[]string{"operation", "error_type"},
		),
		chunkBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_bytes_total",
				Help: "Total bytes transferred to and from the chunk store",
			},
			[]string{"operation"},
		),
		selfEncryptionOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "self_encryption_operations_total",
				Help: "Total number of self-encryption passes",
			},
			[]string{"operation"}, // "encode" or "decode"
		),
		selfEncryptionTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "self_encryption_duration_seconds",
				Help:    "Self-encryption pass duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		selfEncryptionSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "self_encryption_payload_bytes",
				Help:    "Payload size per self-encryption pass",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
			},
			[]string{"operation"},
		),
		packLevels: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pack_levels",
				Help:    "Number of re-encoding levels needed to fit the root in one chunk",
				Buckets: []float64{0, 1, 2, 3, 4},
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
	}
}

// RecordChunkOperation records a chunk store operation metric.
func (m *Metrics) RecordChunkOperation(ctx context.Context, operation string, duration time.Duration, bytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkOpsTotal.WithLabelValues(operation).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.chunkOpsTotal.WithLabelValues(operation).Inc()
		}

		if observer, ok := m.chunkOpDuration.WithLabelValues(operation).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.chunkOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
		}
	} else {
		m.chunkOpsTotal.WithLabelValues(operation).Inc()
		m.chunkOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	m.chunkBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordChunkError records a chunk store operation error.
func (m *Metrics) RecordChunkError(ctx context.Context, operation, errorType string) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkOpErrors.WithLabelValues(operation, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
			return
		}
	}
	m.chunkOpErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordSelfEncryption records one full self-encryption pass.
func (m *Metrics) RecordSelfEncryption(ctx context.Context, operation string, duration time.Duration, payloadBytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.selfEncryptionOps.WithLabelValues(operation).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.selfEncryptionOps.WithLabelValues(operation).Inc()
		}
	} else {
		m.selfEncryptionOps.WithLabelValues(operation).Inc()
	}

	m.selfEncryptionTime.WithLabelValues(operation).Observe(duration.Seconds())
	m.selfEncryptionSize.WithLabelValues(operation).Observe(float64(payloadBytes))
}

// RecordPackLevels records how many re-encoding levels a create needed.
func (m *Metrics) RecordPackLevels(levels int) {
	m.packLevels.Observe(float64(levels))
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates
// system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts the trace ID from context and returns prometheus
// Labels for an exemplar.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
