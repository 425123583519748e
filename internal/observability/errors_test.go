package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordErrorWritesStandardizedErrorResponse(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	span := trace.SpanFromContext(ctx)
	logger := zap.NewNop()

	counter, err := otel.Meter("test").Int64Counter("test.errors.total")
	if err != nil {
		t.Fatalf("creating counter: %v", err)
	}

	w := httptest.NewRecorder()

	RecordError(ctx, span, logger, counter, ErrorReport{
		Operation: "simulate",
		Kind:      "build",
		Message:   "unknown material",
		Err:       errors.New("surface 1: unknown material"),
		Status:    http.StatusInternalServerError,
	}, w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}

	if got := body["error"]; got != "unknown material" {
		t.Fatalf("expected error %q, got %q", "unknown material", got)
	}

	if _, ok := body["request_id"]; ok {
		t.Fatal("did not expect request_id field in JSON body")
	}
}

func TestRecordErrorLogLevel(t *testing.T) {
	counter, err := otel.Meter("test").Int64Counter("test.errors.total")
	if err != nil {
		t.Fatalf("creating counter: %v", err)
	}

	tests := []struct {
		name        string
		clientFault bool
		want        zapcore.Level
	}{
		{name: "server fault", clientFault: false, want: zapcore.ErrorLevel},
		{name: "client fault", clientFault: true, want: zapcore.WarnLevel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			ctx := ContextWithRequestID(context.Background(), "req-2")

			RecordError(ctx, trace.SpanFromContext(ctx), zap.New(core), counter, ErrorReport{
				Operation:   "simulate",
				Kind:        "validation",
				Message:     "surfaces is required",
				Err:         errors.New("surfaces is required"),
				Status:      http.StatusInternalServerError,
				ClientFault: tc.clientFault,
			}, httptest.NewRecorder())

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tc.want {
				t.Fatalf("expected level %s, got %s", tc.want, entries[0].Level)
			}

			fields := entries[0].ContextMap()
			if fields["kind"] != "validation" {
				t.Fatalf("expected kind %q, got %#v", "validation", fields["kind"])
			}
			if fields["request_id"] != "req-2" {
				t.Fatalf("expected request_id %q, got %#v", "req-2", fields["request_id"])
			}
		})
	}
}
