// Package tracing records reconciliation ticks, per-profile batches and
// document pushes as OpenTelemetry spans, exported to stdout or an OTLP/HTTP
// collector.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation scope of every docsync span.
	TracerName = "github.com/jbctechsolutions/docsync"

	// Version is reported as service.version.
	Version = "0.3.0"
)

// ExporterType selects where finished spans go.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config mirrors the observability.tracing section of config.yaml plus the
// fields only a caller can supply.
type Config struct {
	Enabled      bool
	ExporterType ExporterType
	OTLPEndpoint string // host:port; empty uses the exporter default
	ServiceName  string
	Environment  string
	SampleRate   float64   // clamped to [0, 1]
	Output       io.Writer // stdout exporter only; nil means os.Stdout
}

// DefaultConfig returns tracing switched off.
func DefaultConfig() Config {
	return Config{
		ExporterType: ExporterNone,
		ServiceName:  "docsync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer starts docsync spans. A Tracer without a provider drops everything.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Default returns a tracer that records nothing.
func Default() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
}

// New builds a tracer for cfg and installs its provider globally. A disabled
// config or the none exporter yields Default().
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return Default(), nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.ExporterType, err)
	}

	// resource.Default() is left out: its schema URL differs from semconv v1.26.0.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to describe tracing resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		var opts []stdouttrace.Option
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)
	case ExporterOTLP:
		// Collectors run next to the daemon; TLS is terminated elsewhere.
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", cfg.ExporterType)
	}
}

// Shutdown flushes pending spans. It is a no-op for Default().
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Span wraps a trace.Span with docsync attribute setters.
type Span struct {
	span trace.Span
}

// StartTickSpan starts a span covering one scheduler tick.
func (t *Tracer) StartTickSpan(ctx context.Context, tickID string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "reconcile.tick",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tick.id", tickID)),
	)
	return ctx, &Span{span: span}
}

// StartBatchSpan starts a span for one profile's batch push.
func (t *Tracer) StartBatchSpan(ctx context.Context, profileID string, candidates int) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "reconcile.batch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("profile.id", profileID),
			attribute.Int("batch.candidates", candidates),
		),
	)
	return ctx, &Span{span: span}
}

// StartPushSpan starts a span for pushing one file to a profile.
func (t *Tracer) StartPushSpan(ctx context.Context, profileID, fileID, fileName string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, "document.push",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("profile.id", profileID),
			attribute.String("file.id", fileID),
			attribute.String("file.name", fileName),
		),
	)
	return ctx, &Span{span: span}
}

// StartClientSpan starts a span for an outbound HTTP call to service.
func (t *Tracer) StartClientSpan(ctx context.Context, service, operation string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("peer.service", service)),
	)
	return ctx, &Span{span: span}
}

// SetInt sets an integer attribute.
func (s *Span) SetInt(key string, v int) {
	s.span.SetAttributes(attribute.Int(key, v))
}

// SetString sets a string attribute.
func (s *Span) SetString(key, v string) {
	s.span.SetAttributes(attribute.String(key, v))
}

// SetBool sets a boolean attribute.
func (s *Span) SetBool(key string, v bool) {
	s.span.SetAttributes(attribute.Bool(key, v))
}

// End ends the span with success status.
func (s *Span) End() {
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
}

// EndWithError ends the span with error status. A nil error ends it successfully.
func (s *Span) EndWithError(err error) {
	if err == nil {
		s.End()
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.End()
}
