package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is the service.name resource attribute.
const DefaultServiceName = "storesync"

// TracerName is the instrumentation scope for engine spans.
const TracerName = "github.com/roach88/storesync"

// ShutdownFunc flushes and stops a tracer provider.
type ShutdownFunc func(ctx context.Context) error

// TracerOption configures NewTracerProvider.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
	sampling       float64
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) TracerOption {
	return func(c *tracerConfig) {
		c.serviceVersion = v
	}
}

// WithEndpoint sets the OTLP/HTTP collector endpoint (host:port). An empty
// endpoint disables tracing.
func WithEndpoint(endpoint string) TracerOption {
	return func(c *tracerConfig) {
		c.endpoint = endpoint
	}
}

// WithInsecure sends spans over plain HTTP.
func WithInsecure(insecure bool) TracerOption {
	return func(c *tracerConfig) {
		c.insecure = insecure
	}
}

// WithSampling sets the trace ID ratio sampler (0..1).
func WithSampling(ratio float64) TracerOption {
	return func(c *tracerConfig) {
		c.sampling = ratio
	}
}

// NewTracerProvider creates an OTLP tracer provider, or a no-op provider
// when no endpoint is configured. The returned ShutdownFunc must be called
// before exit to flush buffered spans.
func NewTracerProvider(ctx context.Context, opts ...TracerOption) (trace.TracerProvider, ShutdownFunc, error) {
	cfg := &tracerConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		sampling:       1.0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.endpoint == "" {
		slog.Debug("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.endpoint)}
	if cfg.insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.sampling)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.insecure {
		slog.Warn("Tracing configured with insecure connection")
	}
	slog.Info("Tracing initialized", "endpoint", cfg.endpoint, "sampling_ratio", cfg.sampling)

	return tp, tp.Shutdown, nil
}
