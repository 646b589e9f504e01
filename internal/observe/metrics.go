// Package observe provides application-wide observability primitives for
// Quill: OpenTelemetry metrics, tracing, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Quill metrics.
const meterName = "github.com/quillscribe/quill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognitionDuration tracks per-window speech-to-text latency. Use with
	// attributes: attribute.String("profile", ...), attribute.String("status", ...)
	RecognitionDuration metric.Float64Histogram

	// SummaryDuration tracks end-to-end summarization latency.
	SummaryDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// Segments counts appended transcript segments. Use with attributes:
	//   attribute.String("source", ...), attribute.Bool("gap", ...)
	Segments metric.Int64Counter

	// SessionOutcomes counts sessions reaching a terminal state. Use with
	// attributes: attribute.String("platform", ...), attribute.String("outcome", ...)
	SessionOutcomes metric.Int64Counter

	// ConsentDecisions counts consent prompt resolutions. Use with attribute:
	//   attribute.String("decision", ...)
	ConsentDecisions metric.Int64Counter

	// RecognitionErrors counts failed recognition calls.
	RecognitionErrors metric.Int64Counter

	// ActiveSessions tracks the number of live (non-terminal) sessions.
	ActiveSessions metric.Int64UpDownCounter

	// meter is retained for late-bound observable instruments.
	meter metric.Meter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// local model inference.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.RecognitionDuration, err = m.Float64Histogram("quill.recognition.duration",
		metric.WithDescription("Latency of one window's speech-to-text call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = m.Float64Histogram("quill.summary.duration",
		metric.WithDescription("Latency of post-meeting summarization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("quill.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.Segments, err = m.Int64Counter("quill.transcript.segments",
		metric.WithDescription("Total appended transcript segments by source and gap flag."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("quill.session.outcomes",
		metric.WithDescription("Total sessions reaching a terminal state by platform and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ConsentDecisions, err = m.Int64Counter("quill.consent.decisions",
		metric.WithDescription("Total consent prompt resolutions by decision."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("quill.recognition.errors",
		metric.WithDescription("Total failed recognition calls."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("quill.active_sessions",
		metric.WithDescription("Number of live meeting sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterBacklogGauge exposes the pipeline's pending-window backlog as an
// observable gauge, sampled on every metrics collection.
func (m *Metrics) RegisterBacklogGauge(backlog func() int64) error {
	gauge, err := m.meter.Int64ObservableGauge("quill.pipeline.queued_windows",
		metric.WithDescription("Windows waiting for a recognition slot across all sessions."),
	)
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, backlog())
		return nil
	}, gauge)
	return err
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

// RecordRecognition records one recognition call's latency and, on failure,
// increments the error counter.
func (m *Metrics) RecordRecognition(ctx context.Context, profile string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecognitionErrors.Add(ctx, 1)
	}
	m.RecognitionDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("profile", profile),
			attribute.String("status", status),
		),
	)
}

// RecordSegment records one appended transcript segment.
func (m *Metrics) RecordSegment(ctx context.Context, source string, gap bool) {
	m.Segments.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.Bool("gap", gap),
		),
	)
}

// RecordSessionOutcome records a session reaching a terminal state.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, platform, outcome string) {
	m.SessionOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordConsentDecision records a resolved consent prompt.
func (m *Metrics) RecordConsentDecision(ctx context.Context, decision string) {
	m.ConsentDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}
