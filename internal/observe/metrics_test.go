package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// sumFor returns the value of the data point carrying key=value.
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
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, StageRecognize, 0.8)
	m.RecordStage(ctx, StageRecognize, 1.1)
	m.RecordStage(ctx, StageForcedAlign, 4.2)

	met := findMetric(collect(t, reader), "orato.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("stage")
		counts[v.AsString()] = dp.Count
	}
	if counts[StageRecognize] != 2 || counts[StageForcedAlign] != 1 {
		t.Errorf("stage counts = %v, want recognize=2 forced_align=1", counts)
	}
}

func TestRecordAssessment(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAssessment(ctx, "mfa", 85, 86.4, 3.2)
	m.RecordAssessment(ctx, "mfa", 85, 85.1, 2.9)
	m.RecordAssessment(ctx, "none", 0, 0, 1.0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "orato.assessments", "band", "85"); got != 2 {
		t.Errorf("band 85 assessments = %d, want 2", got)
	}
	if got := sumFor(t, rm, "orato.assessments", "band", "none"); got != 1 {
		t.Errorf("unscored assessments = %d, want 1", got)
	}

	met := findMetric(rm, "orato.score.pte")
	if met == nil {
		t.Fatal("score histogram not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("score samples = %+v, want one series with 2 samples", hist.DataPoints)
	}

	dur := findMetric(rm, "orato.assessment.duration")
	if dur == nil {
		t.Fatal("duration histogram not found")
	}
	if got := dur.Data.(metricdata.Histogram[float64]).DataPoints[0].Count; got != 3 {
		t.Errorf("duration samples = %d, want 3", got)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFallback(ctx, "unclear_audio")
	m.RecordFallback(ctx, "forced_align_failed")
	m.RecordFallback(ctx, "forced_align_failed")
	m.RecordProviderRequest(ctx, "mfa", "aligner", "ok")
	m.RecordProviderRequest(ctx, "mfa", "aligner", "ok")
	m.RecordProviderRequest(ctx, "mfa", "aligner", "error")
	m.RecordProviderError(ctx, "wav2vec", "phonemes")
	m.RecordBreakerTransition(ctx, "mfa", "open")

	rm := collect(t, reader)
	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"orato.fallbacks", "reason", "forced_align_failed", 2},
		{"orato.fallbacks", "reason", "unclear_audio", 1},
		{"orato.provider.requests", "status", "ok", 2},
		{"orato.provider.errors", "provider", "wav2vec", 1},
		{"orato.breaker.transitions", "to", "open", 1},
	}
	for _, tt := range tests {
		t.Run(tt.metric+"/"+tt.value, func(t *testing.T) {
			if got := sumFor(t, rm, tt.metric, tt.key, tt.value); got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestActiveAssessments(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveAssessments.Add(ctx, 1)
	m.ActiveAssessments.Add(ctx, 1)
	m.ActiveAssessments.Add(ctx, -1)

	met := findMetric(collect(t, reader), "orato.active_assessments")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric has no sum data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("in flight = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
