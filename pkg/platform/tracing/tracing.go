// Package tracing holds small OpenTelemetry helpers shared by the gate and stores.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used across spans.
const (
	AttrPolicy = attribute.Key("authz.policy")
	AttrTable  = attribute.Key("authz.table")
	AttrCode   = attribute.Key("authz.code")
	AttrUserID = attribute.Key("enduser.id")
	AttrFound  = attribute.Key("authz.record_found")
)

// StartSpan starts a span on tracer, or returns the context's current span when tracer is nil.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. The status text stays generic; details go to the event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
