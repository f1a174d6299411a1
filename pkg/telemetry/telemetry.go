// Package telemetry reports player statistics and engine failures.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "github.com/go-drift/effects"

// Monitor receives telemetry from players. Implementations must be safe for
// concurrent use; calls arrive on background goroutines.
type Monitor interface {
	// Statistics reports the rendering capabilities the engine detected.
	Statistics(resourceID string, compressedTexture bool, glesVersion string)
	// Error reports a failure of kind for resourceID.
	Error(resourceID, kind, message string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Statistics(string, bool, string) {}
func (Nop) Error(string, string, string)    {}

// OTel records each report as a span.
type OTel struct {
	tracer trace.Tracer
}

// NewOTel returns a monitor using tp. A nil tp uses the global provider.
func NewOTel(tp trace.TracerProvider) *OTel {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTel{tracer: tp.Tracer(TracerName)}
}

func (o *OTel) Statistics(resourceID string, compressedTexture bool, glesVersion string) {
	_, span := o.tracer.Start(context.Background(), "effects.statistics",
		trace.WithAttributes(
			attribute.String("effects.resource_id", resourceID),
			attribute.Bool("effects.compressed_texture", compressedTexture),
			attribute.String("effects.gles_version", glesVersion),
		))
	span.End()
}

func (o *OTel) Error(resourceID, kind, message string) {
	_, span := o.tracer.Start(context.Background(), "effects.error",
		trace.WithAttributes(
			attribute.String("effects.resource_id", resourceID),
			attribute.String("effects.error_kind", kind),
		))
	span.SetStatus(codes.Error, message)
	span.End()
}

// Setup installs an OTLP/HTTP tracer provider for serviceName.
//
// Tracing is opt-in: when endpoint is empty, Setup returns a no-op shutdown
// function and no global provider is registered. The returned shutdown
// function flushes pending spans and should be deferred by the caller.
func Setup(ctx context.Context, serviceName, endpoint string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	slog.Debug("telemetry export enabled", slog.String("component", "telemetry"), slog.String("endpoint", endpoint))

	return tp.Shutdown, nil
}
