// Package tracing provides OpenTelemetry distributed tracing setup and utilities.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RegistryOperation names a registry operation for span labeling.
type RegistryOperation string

const (
	RegistryOperationUpdate RegistryOperation = "update"
	RegistryOperationRemove RegistryOperation = "remove"
	RegistryOperationQuery  RegistryOperation = "query"
	RegistryOperationTotal  RegistryOperation = "total"
	RegistryOperationClear  RegistryOperation = "clear"
)

// StartRegistrySpan creates a span for a registry operation (update/remove/query/total/clear).
// Returns the new context and a function to end the span.
//
// Example usage:
//
//	ctx, endSpan := tracing.StartRegistrySpan(ctx, tracing.RegistryOperationQuery, sources)
//	defer endSpan(err)
//	// ... resolve offset and merge ...
func StartRegistrySpan(ctx context.Context, operation RegistryOperation, sources []string) (context.Context, func(error)) {
	tracer := otel.Tracer("feedindex/registry")

	ctx, span := tracer.Start(ctx, string(operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("feedindex.operation", string(operation)),
			attribute.Int("feedindex.source_count", len(sources)),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartSpan creates a new span for a general operation.
// Returns the new context and a function to end the span.
//
// Example usage:
//
//	ctx, endSpan := tracing.StartSpan(ctx, "resolve_day")
//	defer endSpan(err)
//	// ... perform operation ...
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	tracer := otel.Tracer("feedindex")

	ctx, span := tracer.Start(ctx, name)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}
