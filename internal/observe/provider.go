package observe

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures the telemetry of a recognizer process.
type ProviderConfig struct {
	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// Locale and Source describe the recognizer. They are attached to the
	// resource so dashboards can tell recognizers apart.
	Locale string
	Source string

	// SampleRatio is the fraction of utterance traces kept. Zero keeps all.
	SampleRatio float64

	// TraceExporter receives the utterance spans. Nil records spans without
	// exporting them.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collectors. Nil selects the
	// default registry served by promhttp.Handler.
	Registerer prometheus.Registerer
}

// Telemetry holds the SDK providers installed by [InitProvider] and the
// recognizer instruments created from them.
type Telemetry struct {
	Metrics *Metrics

	shutdown []func(context.Context) error
}

// InitProvider installs a meter provider that feeds the Prometheus exporter
// and a tracer provider for utterance spans, both as the global OTel
// providers, and builds the [Metrics] on top of them.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName("choicerec"),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Locale != "" {
		attrs = append(attrs, attribute.String("choicerec.locale", cfg.Locale))
	}
	if cfg.Source != "" {
		attrs = append(attrs, attribute.String("choicerec.source", cfg.Source))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, err
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	m, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx), tp.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	return &Telemetry{Metrics: m, shutdown: []func(context.Context) error{mp.Shutdown, tp.Shutdown}}, nil
}

// Shutdown flushes and closes the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
