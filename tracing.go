package seqstream

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// noopTracer returns a tracer that records nothing, used when the caller
// doesn't configure one via WithTracer.
func noopTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("seqstream")
}

// startSpan opens a span named "seqstream.<op>" tagged with sequence/topic
// attributes. A nil tracer records nothing.
func startSpan(ctx context.Context, tracer trace.Tracer, op, sequence, topic string) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noopTracer()
	}
	attrs := []attribute.KeyValue{attribute.String("seqstream.sequence", sequence)}
	if topic != "" {
		attrs = append(attrs, attribute.String("seqstream.topic", topic))
	}
	return tracer.Start(ctx, "seqstream."+op, trace.WithAttributes(attrs...))
}
