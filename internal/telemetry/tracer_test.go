package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider_DisabledWithoutEndpoint(t *testing.T) {
	tp, shutdown, err := NewTracerProvider(context.Background())
	require.NoError(t, err)

	_, ok := tp.(noop.TracerProvider)
	assert.True(t, ok, "expected no-op provider, got %T", tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewTracerProvider_WithEndpoint(t *testing.T) {
	tp, shutdown, err := NewTracerProvider(context.Background(),
		WithEndpoint("127.0.0.1:4318"),
		WithInsecure(true),
		WithServiceVersion("test"),
		WithSampling(0),
	)
	require.NoError(t, err)

	_, ok := tp.(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected sdk provider, got %T", tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_NilTracer(t *testing.T) {
	ctx := context.Background()
	got, span := StartSpan(ctx, nil, "noop")
	assert.Equal(t, ctx, got)
	assert.False(t, span.SpanContext().IsValid())
}

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	_, span := StartSpan(context.Background(), tp.Tracer(TracerName), "op")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Len(t, ended[0].Events(), 1)
}
