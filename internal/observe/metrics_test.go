package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/choicerec/pkg/recognition"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestObserver(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ObserveEvent(ctx, recognition.KindStarted)
	m.ObserveEvent(ctx, recognition.KindDetected)
	m.ObserveEvent(ctx, recognition.KindDetected)
	m.ObserveEvent(ctx, recognition.KindCompleted)
	m.ObserveCandidates(ctx, 1)
	m.ObserveCandidates(ctx, 3)
	m.ObserveReplacement(ctx)
	m.ObserveElevation(ctx, recognition.KindRejected)
	m.ObserveUtterance(ctx, 1500*time.Millisecond, recognition.KindCompleted)

	rm := collect(t, reader)

	if got := sumFor(t, rm, "choicerec.events", "kind", "detected"); got != 2 {
		t.Errorf("detected events = %d, want 2", got)
	}
	if got := sumFor(t, rm, "choicerec.hypothesis.replacements", "", ""); got != 1 {
		t.Errorf("replacements = %d, want 1", got)
	}
	if got := sumFor(t, rm, "choicerec.hypothesis.elevations", "trigger", "rejected"); got != 1 {
		t.Errorf("elevations = %d, want 1", got)
	}

	met := findMetric(rm, "choicerec.repair.candidates")
	if met == nil {
		t.Fatal("candidate histogram not found")
	}
	cand, ok := met.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("candidate metric is not an int64 histogram")
	}
	if dp := cand.DataPoints[0]; dp.Count != 2 || dp.Sum != 4 {
		t.Errorf("candidates: count=%d sum=%d, want 2 and 4", dp.Count, dp.Sum)
	}

	met = findMetric(rm, "choicerec.utterance.duration")
	if met == nil {
		t.Fatal("utterance histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("utterance metric is not a histogram")
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 || dp.Sum != 1.5 {
		t.Errorf("utterance: count=%d sum=%v, want 1 and 1.5", dp.Count, dp.Sum)
	}
	if v, _ := dp.Attributes.Value("outcome"); v.AsString() != "completed" {
		t.Errorf("outcome attribute = %q, want completed", v.AsString())
	}
}

func TestTranscriptAndProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscript(ctx, false)
	m.RecordTranscript(ctx, false)
	m.RecordTranscript(ctx, true)
	m.RecordProviderError(ctx, "deepgram", "stt")
	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, 1)
	m.ActiveStreams.Add(ctx, -1)
	m.RecordReload(ctx, "choices")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"choicerec.stt.transcripts", "type", "partial", 2},
		{"choicerec.stt.transcripts", "type", "final", 1},
		{"choicerec.provider.errors", "provider", "deepgram", 1},
		{"choicerec.active_streams", "", "", 1},
		{"choicerec.config.reloads", "scope", "choices", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			if got := sumFor(t, rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "choicerec.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
