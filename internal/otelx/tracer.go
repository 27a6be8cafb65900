// Package otelx wraps OpenTelemetry tracing for PANfm's poll pipeline: one
// span per device per collection tick, with child spans per firewall
// operation and per Store call (§9). Adapted from the teacher's internal/otel
// package: same exporter selection and resource/sampler construction, minus
// its package-level global tracer — PANfm's re-architecture directive is no
// process-global mutable state, so every component that wants tracing holds
// its own *Tracer reference, threaded in at construction.
package otelx

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExporterType selects where finished spans are sent.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config controls one Tracer's construction.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	ExporterType   ExporterType
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// DefaultConfig returns tracing disabled, matching the teacher's default —
// tracing is opt-in infrastructure, not a default ambient cost.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ServiceName:  "panfm",
		ExporterType: ExporterNone,
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry TracerProvider with PANfm-specific span
// helpers for the poll pipeline.
type Tracer struct {
	cfg        Config
	provider   trace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	shutdown   func(context.Context) error
}

// New builds a Tracer. Disabled or ExporterNone configurations produce a
// no-op tracer so callers never need a nil check before starting a span.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	t := &Tracer{
		cfg:        cfg,
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		t.provider = noop.NewTracerProvider()
		t.tracer = t.provider.Tracer(cfg.ServiceName)
		t.shutdown = func(context.Context) error { return nil }
		return t, nil
	}

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otelx: building exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("", attrs...))
	if err != nil {
		return nil, fmt.Errorf("otelx: building resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	t.provider = tp
	t.tracer = tp.Tracer(cfg.ServiceName)
	t.shutdown = tp.Shutdown
	return t, nil
}

func buildExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLPGRPC:
		var opts []otlptracegrpc.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		var opts []otlptracehttp.Option
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown flushes pending spans, bounded by ctx's deadline.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// Enabled reports whether this Tracer exports anywhere.
func (t *Tracer) Enabled() bool {
	return t.cfg.Enabled && t.cfg.ExporterType != ExporterNone
}

// Propagator exposes the tracer's W3C traceparent propagator.
func (t *Tracer) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// StartSpan starts a generic span, for call sites that don't fit one of the
// named helpers below.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartPollSpan starts the top-level span for one device's collection tick.
func (t *Tracer) StartPollSpan(ctx context.Context, deviceID, job string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "panfm.poll/"+job,
		trace.WithAttributes(
			attribute.String("panfm.device_id", deviceID),
			attribute.String("panfm.job", job),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartOpSpan starts a child span for one firewall operation within a poll.
func (t *Tracer) StartOpSpan(ctx context.Context, deviceID, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "panfm.firewall_op/"+op,
		trace.WithAttributes(
			attribute.String("panfm.device_id", deviceID),
			attribute.String("panfm.op", op),
		),
	)
}

// StartStoreSpan starts a child span for one Store call.
func (t *Tracer) StartStoreSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "panfm.store/"+method,
		trace.WithAttributes(attribute.String("panfm.store_method", method)),
	)
}

// RecordError records err on span along with PANfm's error-class attribute
// (§7's taxonomy), so traces can be filtered by class in a backend.
func RecordError(span trace.Span, err error, errorClass string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String("panfm.error_class", errorClass))
}

// NoopTracer returns a Tracer that records nothing, for tests and for
// components built before a real Tracer is available.
func NoopTracer() *Tracer {
	tp := noop.NewTracerProvider()
	return &Tracer{
		cfg:        DefaultConfig(),
		provider:   tp,
		tracer:     tp.Tracer("panfm"),
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}),
		shutdown:   func(context.Context) error { return nil },
	}
}
