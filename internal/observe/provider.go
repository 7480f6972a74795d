package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"

	"github.com/MrWong99/castmix/internal/config"
)

// httpBuckets cover health and scrape handlers, which answer in milliseconds.
var httpBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Views returns the stream customizations applied to castmix instruments.
// Provider instruments keep only their documented attributes so provider
// wrappers cannot blow up series cardinality.
func Views() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "castmix.provider.*"},
			sdkmetric.Stream{AttributeFilter: attribute.NewAllowKeysFilter("provider", "kind", "status")},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "castmix.http.request.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: httpBuckets}},
		),
	}
}

// TelemetryOption adjusts [InitProvider].
type TelemetryOption func(*telemetrySetup)

type telemetrySetup struct {
	registerer prometheus.Registerer
	processors []sdktrace.SpanProcessor
}

// WithRegisterer exports metrics into reg instead of the default Prometheus
// registry.
func WithRegisterer(reg prometheus.Registerer) TelemetryOption {
	return func(s *telemetrySetup) { s.registerer = reg }
}

// WithSpanProcessor adds a span processor to the tracer provider.
func WithSpanProcessor(p sdktrace.SpanProcessor) TelemetryOption {
	return func(s *telemetrySetup) { s.processors = append(s.processors, p) }
}

// InitProvider installs the global meter and tracer providers for the
// telemetry section of the config. Metrics go to Prometheus; sampled spans go
// to the configured processors and, with log_spans, to the debug log.
//
// The returned function flushes and shuts down both providers.
func InitProvider(ctx context.Context, cfg config.TelemetryConfig, opts ...TelemetryOption) (shutdown func(context.Context) error, err error) {
	var s telemetrySetup
	for _, o := range opts {
		o(&s)
	}
	name := cfg.ServiceName
	if name == "" {
		name = config.DefaultServiceName
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var promOpts []promexporter.Option
	if s.registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(s.registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
		sdkmetric.WithView(Views()...),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio()))),
	}
	for _, p := range s.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}
	if cfg.LogSpans {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(spanLogger{}))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	slog.DebugContext(ctx, "telemetry initialised", "service", name, "sample_ratio", cfg.SampleRatio(), "log_spans", cfg.LogSpans)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// buildVersion reports the module version of the running binary.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// spanLogger writes finished spans to the debug log.
type spanLogger struct{}

func (spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (spanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	sc := s.SpanContext()
	slog.Debug("span finished",
		"span", s.Name(),
		"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
		"status", s.Status().Code.String(),
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}

func (spanLogger) Shutdown(context.Context) error   { return nil }
func (spanLogger) ForceFlush(context.Context) error { return nil }
