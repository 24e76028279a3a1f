package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
const (
	AttrRunID      = attribute.Key("storesync.run_id")
	AttrChangeKind = attribute.Key("storesync.change_kind")
	AttrCount      = attribute.Key("storesync.count")
	AttrInserted   = attribute.Key("storesync.inserted")
	AttrRemoved    = attribute.Key("storesync.removed")
	AttrCollection = attribute.Key("storesync.collection")
	AttrErrorCode  = attribute.Key("storesync.error_code")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a
// no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
