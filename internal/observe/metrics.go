// Package observe provides application-wide observability primitives for
// choicerec: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/choicerec/pkg/hypothesis"
	"github.com/MrWong99/choicerec/pkg/recognition"
)

// meterName is the instrumentation scope name used for all choicerec metrics.
const meterName = "github.com/MrWong99/choicerec"

// Metrics holds all OpenTelemetry metric instruments for the application.
// It implements [hypothesis.Observer].
type Metrics struct {
	// --- Recognition ---

	// Events counts events forwarded by the evaluator. Attribute: kind.
	Events metric.Int64Counter

	// RepairCandidates records the number of repaired candidates per
	// detection.
	RepairCandidates metric.Int64Histogram

	// Replacements counts changes of the retained hypothesis.
	Replacements metric.Int64Counter

	// Elevations counts hypotheses substituted for a weak or missing final
	// result. Attribute: trigger (rejected or completed).
	Elevations metric.Int64Counter

	// UtteranceDuration tracks the time from Started to the terminal event.
	// Attribute: outcome.
	UtteranceDuration metric.Float64Histogram

	// --- Transcription ---

	// Transcripts counts transcripts received from the STT provider.
	// Attribute: type (partial or final).
	Transcripts metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ActiveStreams tracks the number of open STT sessions.
	ActiveStreams metric.Int64UpDownCounter

	// --- Configuration ---

	// Reloads counts applied config changes. Attribute: scope.
	Reloads metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

var _ hypothesis.Observer = (*Metrics)(nil)

// utteranceBuckets defines histogram bucket boundaries (in seconds) for
// spoken answers.
var utteranceBuckets = []float64{
	0.25, 0.5, 1, 1.5, 2, 3, 5, 8, 13, 20,
}

// candidateBuckets covers the repair fan-out up to its cap.
var candidateBuckets = []float64{0, 1, 2, 4, 8, 16, 32, 64}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Events, err = m.Int64Counter("choicerec.events",
		metric.WithDescription("Recognition events forwarded by the evaluator, by kind."),
	); err != nil {
		return nil, err
	}
	if met.RepairCandidates, err = m.Int64Histogram("choicerec.repair.candidates",
		metric.WithDescription("Repaired candidates considered per detection."),
		metric.WithExplicitBucketBoundaries(candidateBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Replacements, err = m.Int64Counter("choicerec.hypothesis.replacements",
		metric.WithDescription("Changes of the retained hypothesis."),
	); err != nil {
		return nil, err
	}
	if met.Elevations, err = m.Int64Counter("choicerec.hypothesis.elevations",
		metric.WithDescription("Hypotheses substituted for the final result, by trigger."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("choicerec.utterance.duration",
		metric.WithDescription("Time from speech onset to the terminal event, by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Transcripts, err = m.Int64Counter("choicerec.stt.transcripts",
		metric.WithDescription("Transcripts received from the STT provider, by type."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("choicerec.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("choicerec.active_streams",
		metric.WithDescription("Number of open STT streaming sessions."),
	); err != nil {
		return nil, err
	}

	if met.Reloads, err = m.Int64Counter("choicerec.config.reloads",
		metric.WithDescription("Applied configuration changes by scope."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("choicerec.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// ObserveEvent implements [hypothesis.Observer].
func (m *Metrics) ObserveEvent(ctx context.Context, kind recognition.Kind) {
	m.Events.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind.String())))
}

// ObserveCandidates implements [hypothesis.Observer].
func (m *Metrics) ObserveCandidates(ctx context.Context, n int) {
	m.RepairCandidates.Record(ctx, int64(n))
}

// ObserveReplacement implements [hypothesis.Observer].
func (m *Metrics) ObserveReplacement(ctx context.Context) {
	m.Replacements.Add(ctx, 1)
}

// ObserveElevation implements [hypothesis.Observer].
func (m *Metrics) ObserveElevation(ctx context.Context, trigger recognition.Kind) {
	m.Elevations.Add(ctx, 1, metric.WithAttributes(Attr("trigger", trigger.String())))
}

// ObserveUtterance implements [hypothesis.Observer].
func (m *Metrics) ObserveUtterance(ctx context.Context, d time.Duration, outcome recognition.Kind) {
	m.UtteranceDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("outcome", outcome.String())))
}

// RecordTranscript records a transcript received from the STT provider.
func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	typ := "partial"
	if final {
		typ = "final"
	}
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(Attr("type", typ)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordReload records an applied config change. scope is one of "choices",
// "tuning" or "log_level".
func (m *Metrics) RecordReload(ctx context.Context, scope string) {
	m.Reloads.Add(ctx, 1, metric.WithAttributes(Attr("scope", scope)))
}
