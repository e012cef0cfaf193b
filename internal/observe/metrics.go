// Package observe provides the observability plumbing for Orato:
// OpenTelemetry metrics and tracing, trace-aware structured logging, and
// HTTP middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API. [InitProvider] installs
// a Prometheus exporter bridge so they can be scraped at /metrics. A
// package-level [DefaultMetrics] instance exists for convenience; tests
// should build their own with [NewMetrics] and a ManualReader-backed
// provider to avoid cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every Orato instrument.
const meterName = "github.com/MrWong99/orato"

// Pipeline stages reported on StageDuration.
const (
	StageRecognize       = "recognize"
	StageForcedAlign     = "forced_align"
	StageFallbackExtract = "fallback_extract"
	StageScore           = "score"
)

// Metrics holds the application's instruments. The OTel types synchronise
// themselves.
type Metrics struct {
	// AssessmentDuration is the end-to-end latency of one assessment.
	AssessmentDuration metric.Float64Histogram

	// StageDuration is per-stage latency. Attribute: stage.
	StageDuration metric.Float64Histogram

	// ScorePTE is the distribution of PTE scores. Attribute: method.
	ScorePTE metric.Float64Histogram

	// Assessments counts finished assessments. Attributes: method, band.
	Assessments metric.Int64Counter

	// Fallbacks counts switches to the neural phoneme path. Attribute:
	// reason ("unclear_audio", "forced_align_failed").
	Fallbacks metric.Int64Counter

	// ProviderRequests counts collaborator calls. Attributes: provider,
	// kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts collaborator failures. Attributes: provider,
	// kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to.
	BreakerTransitions metric.Int64Counter

	// ActiveAssessments is the number of assessments in flight.
	ActiveAssessments metric.Int64UpDownCounter

	// HTTPRequestDuration is API latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets covers fast recogniser calls up to multi-minute forced
// alignment runs.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// scoreBuckets follow the band boundaries.
var scoreBuckets = []float64{30, 45, 50, 60, 70, 75, 80, 85, 90}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AssessmentDuration, err = m.Float64Histogram("orato.assessment.duration",
		metric.WithDescription("End-to-end latency of a pronunciation assessment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("orato.stage.duration",
		metric.WithDescription("Latency of a single assessment stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScorePTE, err = m.Float64Histogram("orato.score.pte",
		metric.WithDescription("Distribution of PTE pronunciation scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Assessments, err = m.Int64Counter("orato.assessments",
		metric.WithDescription("Finished assessments by pronunciation method and band."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("orato.fallbacks",
		metric.WithDescription("Switches to the neural phoneme path by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("orato.provider.requests",
		metric.WithDescription("Collaborator calls by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("orato.provider.errors",
		metric.WithDescription("Collaborator failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("orato.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveAssessments, err = m.Int64UpDownCounter("orato.active_assessments",
		metric.WithDescription("Assessments currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("orato.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on
// [otel.GetMeterProvider]. It panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(Attr("stage", stage)))
}

// RecordAssessment records a finished assessment. band is 0 when no
// pronunciation score was computed.
func (m *Metrics) RecordAssessment(ctx context.Context, method string, band int, score float64, seconds float64) {
	bandAttr := "none"
	if band > 0 {
		bandAttr = strconv.Itoa(band)
		m.ScorePTE.Record(ctx, score, metric.WithAttributes(Attr("method", method)))
	}
	m.Assessments.Add(ctx, 1, metric.WithAttributes(Attr("method", method), Attr("band", bandAttr)))
	m.AssessmentDuration.Record(ctx, seconds)
}

// RecordFallback counts a switch to the neural phoneme path.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordProviderRequest counts a collaborator call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("kind", kind), Attr("status", status)),
	)
}

// RecordProviderError counts a collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)),
	)
}

// RecordBreakerTransition counts a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}
