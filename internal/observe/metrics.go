// Package observe provides application-wide observability primitives for
// voxpipe: OpenTelemetry metrics, tracing helpers, and HTTP middleware for
// the ops endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all voxpipe metrics.
const meterName = "github.com/mliane/voxpipe"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per provider call ---

	// RecognizeDuration tracks transcription latency. Use with attribute:
	//   attribute.String("kind", "partial"|"final")
	RecognizeDuration metric.Float64Histogram

	// SynthesizeDuration tracks speech synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// ExtractDuration tracks intent extraction latency.
	ExtractDuration metric.Float64Histogram

	// DispatchDuration tracks command dispatch latency.
	DispatchDuration metric.Float64Histogram

	// --- Pipeline counters ---

	// Segments counts classified segments. Use with attribute:
	//   attribute.String("speech", "true"|"false")
	Segments metric.Int64Counter

	// SegmentsDropped counts segments lost to batcher queue overflow.
	SegmentsDropped metric.Int64Counter

	// Batches counts finalized batches. Use with attribute:
	//   attribute.String("reason", "short_pause"|"long_pause"|"cap"|"flush")
	Batches metric.Int64Counter

	// PartialsSuperseded counts partial transcriptions discarded because a
	// newer partial for the same batch was already delivered.
	PartialsSuperseded metric.Int64Counter

	// EchoesSuppressed counts transcriptions discarded as self-echo.
	EchoesSuppressed metric.Int64Counter

	// Commands counts dispatched commands. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Commands metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveBatches tracks batches currently being accumulated (0 or 1 per
	// batcher).
	ActiveBatches metric.Int64UpDownCounter

	// MicActive tracks whether capture is live (1) or suspended/idle (0).
	MicActive metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks ops-endpoint request time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for speech-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognizeDuration, err = m.Float64Histogram("voxpipe.recognize.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("voxpipe.synthesize.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractDuration, err = m.Float64Histogram("voxpipe.extract.duration",
		metric.WithDescription("Latency of intent extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("voxpipe.dispatch.duration",
		metric.WithDescription("Latency of command dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Segments, err = m.Int64Counter("voxpipe.segments",
		metric.WithDescription("Total classified segments by speech verdict."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDropped, err = m.Int64Counter("voxpipe.segments.dropped",
		metric.WithDescription("Segments dropped due to batcher queue overflow."),
	); err != nil {
		return nil, err
	}
	if met.Batches, err = m.Int64Counter("voxpipe.batches",
		metric.WithDescription("Finalized speech batches by finalization reason."),
	); err != nil {
		return nil, err
	}
	if met.PartialsSuperseded, err = m.Int64Counter("voxpipe.partials.superseded",
		metric.WithDescription("Partial transcriptions discarded as superseded."),
	); err != nil {
		return nil, err
	}
	if met.EchoesSuppressed, err = m.Int64Counter("voxpipe.echoes.suppressed",
		metric.WithDescription("Transcriptions discarded as probable self-echo."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("voxpipe.commands",
		metric.WithDescription("Dispatched commands by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxpipe.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveBatches, err = m.Int64UpDownCounter("voxpipe.active_batches",
		metric.WithDescription("Speech batches currently being accumulated."),
	); err != nil {
		return nil, err
	}
	if met.MicActive, err = m.Int64UpDownCounter("voxpipe.mic_active",
		metric.WithDescription("Whether the capture pipeline is live."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxpipe.http.request.duration",
		metric.WithDescription("Ops endpoint request latency by method and path."),
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

// RecordSegment records a classified segment with its speech verdict.
func (m *Metrics) RecordSegment(ctx context.Context, speech bool) {
	v := "false"
	if speech {
		v = "true"
	}
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("speech", v)))
}

// RecordBatch records a finalized batch with the reason it was closed.
func (m *Metrics) RecordBatch(ctx context.Context, reason string) {
	m.Batches.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCommand records a dispatched command outcome.
func (m *Metrics) RecordCommand(ctx context.Context, status string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
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
