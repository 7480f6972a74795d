// Package observe provides the OpenTelemetry metrics, tracing and
// trace-aware logging used while assembling episodes.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. [DefaultMetrics] uses the global meter
// provider; tests build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/castmix"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Attribute: stage.
	StageDuration metric.Float64Histogram

	// ProviderDuration tracks external call latency. Attributes: provider,
	// kind (tts, llm, stt, media).
	ProviderDuration metric.Float64Histogram

	// ProviderRequests counts external calls. Attributes: provider, kind,
	// status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed external calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// Degradations counts recovered failures. Attributes: stage, kind.
	Degradations metric.Int64Counter

	// SilenceRemoved records seconds of pause removed per episode.
	SilenceRemoved metric.Float64Histogram

	// MixBytes records the size of the final mix.
	MixBytes metric.Int64Histogram

	// Episodes counts finished runs. Attribute: status (ok, failed).
	Episodes metric.Int64Counter

	// ActiveEpisodes is the number of runs in progress.
	ActiveEpisodes metric.Int64UpDownCounter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, from, to.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks health endpoint latency. Attributes: method,
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// Stage and provider calls range from milliseconds (cleanup) to minutes
// (long syntheses and transcription).
var latencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180,
}

var sizeBuckets = []float64{
	1 << 20, 16 << 20, 64 << 20, 256 << 20, 512 << 20, 1 << 30, 2 << 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("castmix.stage.duration",
		metric.WithDescription("Latency of pipeline stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("castmix.provider.duration",
		metric.WithDescription("Latency of external provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("castmix.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("castmix.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Degradations, err = m.Int64Counter("castmix.degradations",
		metric.WithDescription("Recovered failures by stage and kind."),
	); err != nil {
		return nil, err
	}
	if met.SilenceRemoved, err = m.Float64Histogram("castmix.silence.removed",
		metric.WithDescription("Pause audio removed per episode."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 15, 30, 60, 120, 300),
	); err != nil {
		return nil, err
	}
	if met.MixBytes, err = m.Int64Histogram("castmix.mix.bytes",
		metric.WithDescription("Size of the final episode mix."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Episodes, err = m.Int64Counter("castmix.episodes",
		metric.WithDescription("Finished episode runs by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveEpisodes, err = m.Int64UpDownCounter("castmix.active_episodes",
		metric.WithDescription("Episode runs in progress."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("castmix.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("castmix.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if instrument creation fails.
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

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordProviderCall records one external call. A nil err counts as ok.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
	m.ProviderDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordDegradation counts a recovered failure.
func (m *Metrics) RecordDegradation(ctx context.Context, stage, kind string) {
	m.Degradations.Add(ctx, 1, metric.WithAttributes(Attr("stage", stage), Attr("kind", kind)))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("name", name),
		Attr("from", from),
		Attr("to", to),
	))
}

// RecordEpisode records a finished run.
func (m *Metrics) RecordEpisode(ctx context.Context, ok bool, silenceRemovedS float64, mixBytes int64) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.Episodes.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
	if ok {
		m.SilenceRemoved.Record(ctx, silenceRemovedS)
		m.MixBytes.Record(ctx, mixBytes)
	}
}
