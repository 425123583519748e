package observability

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"opdo-sim/internal/handlers"
)

// ErrorReport describes a failed request for RecordError.
type ErrorReport struct {
	Operation string
	Kind      string
	// Message is the only part of the error returned to the client.
	Message string
	Err     error
	Status  int
	// ClientFault logs at warn level instead of error.
	ClientFault bool
}

// RecordError centralises error handling across all domains: records the error
// on the span, increments the provided error counter, logs with trace context,
// and writes a JSON error HTTP response.
func RecordError(ctx context.Context, span trace.Span, logger *zap.Logger, counter metric.Int64Counter, rep ErrorReport, w http.ResponseWriter) {
	span.RecordError(rep.Err)
	span.SetStatus(codes.Error, rep.Message)

	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", rep.Operation),
		attribute.String("kind", rep.Kind),
	))

	fields := []zap.Field{
		zap.String("operation", rep.Operation),
		zap.String("kind", rep.Kind),
		zap.Error(rep.Err),
		zap.String("request_id", RequestIDFromContext(ctx)),
	}
	if rep.ClientFault {
		logger.Warn("request failed", fields...)
	} else {
		logger.Error("request failed", fields...)
	}

	handlers.WriteError(w, rep.Status, rep.Message)
}
