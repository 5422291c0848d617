// Package observe provides application-wide observability primitives for
/// recapd: OpenTelemetry metrics, distributed tracing, structured logging
// helpers, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all recapd metrics.
const meterName = "github.com/lschiller/recapd"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks processing-stage latency. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// RetrievalDuration tracks end-to-end question answering latency.
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// RecordingsEnqueued counts recordings accepted into the pipeline.
	RecordingsEnqueued metric.Int64Counter

	// RecordingsCompleted counts recordings that reached the complete state.
	RecordingsCompleted metric.Int64Counter

	// RecordingsFailed counts recordings that exhausted their retries. Use
	// with attribute: attribute.String("stage", ...)
	RecordingsFailed metric.Int64Counter

	// StageRetries counts automatic stage retry attempts. Use with attribute:
	//   attribute.String("stage", ...)
	StageRetries metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// InFlightRecordings tracks the number of recordings currently being
	// processed by pipeline workers.
	InFlightRecordings metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds). Transcribing
// a long call can take minutes, so the upper buckets stretch well past the
// sub-second range.
var stageBuckets = []float64{
	0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600,
}

// retrievalBuckets covers the interactive question-answering path.
var retrievalBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("recapd.stage.duration",
		metric.WithDescription("Latency of pipeline stages by stage and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("recapd.retrieval.duration",
		metric.WithDescription("End-to-end question answering latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(retrievalBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RecordingsEnqueued, err = m.Int64Counter("recapd.recordings.enqueued",
		metric.WithDescription("Total recordings accepted into the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsCompleted, err = m.Int64Counter("recapd.recordings.completed",
		metric.WithDescription("Total recordings that finished all stages."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsFailed, err = m.Int64Counter("recapd.recordings.failed",
		metric.WithDescription("Total recordings that exhausted their retries, by stage."),
	); err != nil {
		return nil, err
	}
	if met.StageRetries, err = m.Int64Counter("recapd.stage.retries",
		metric.WithDescription("Total automatic stage retry attempts by stage."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("recapd.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("recapd.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlightRecordings, err = m.Int64UpDownCounter("recapd.recordings.in_flight",
		metric.WithDescription("Number of recordings currently being processed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("recapd.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one stage execution: its duration histogram sample and,
// on failure, the failure counter.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
	if failed {
		m.RecordingsFailed.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", stage)),
		)
	}
}

// RecordStageRetry records one automatic retry attempt for a stage.
func (m *Metrics) RecordStageRetry(ctx context.Context, stage string) {
	m.StageRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
