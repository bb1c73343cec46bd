package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/choicerec/pkg/recognition"
)

func TestInitProvider_ExportsRecognizerMetrics(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	tel, err := InitProvider(ctx, ProviderConfig{
		ServiceVersion: "test",
		Locale:         "en",
		Source:         "replay",
		SampleRatio:    0.5,
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	tel.Metrics.ObserveEvent(ctx, recognition.KindCompleted)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	if !found["choicerec_events_total"] {
		t.Errorf("registry lacks choicerec_events_total, got %v", found)
	}

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
