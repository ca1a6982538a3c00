// Package tracing provides OpenTelemetry spans for relay deliveries.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "postback-relay"

type Tracer struct {
	tracer trace.Tracer
}

func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartRelaySpan starts a span for one delivery attempt.
func (t *Tracer) StartRelaySpan(ctx context.Context, requestID, relayID, mode string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "postback.relay",
		trace.WithAttributes(
			attribute.String("postback.request_id", requestID),
			attribute.String("postback.relay_id", relayID),
			attribute.String("postback.relay_mode", mode),
			attribute.Int("postback.attempt", attempt),
		),
	)
}

// EndRelaySpan records the attempt outcome and ends the span.
func (t *Tracer) EndRelaySpan(span trace.Span, statusCode int, durationMs int64, err error) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int64("postback.duration_ms", durationMs),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
