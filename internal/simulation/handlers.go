package simulation

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"opdo-sim/internal/handlers"
	"opdo-sim/internal/observability"
)

var errTrailingData = errors.New("request body must hold a single JSON object")

// DefaultMaxBodyBytes caps the request body when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// Handler serves POST /simulate.
type Handler struct {
	svc          *Service
	maxBodyBytes int64
}

func NewHandler(svc *Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// Simulate handles POST /simulate. Every failure, bad input included, is
// answered with 500 and {"error": message}.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, "simulation.simulate",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	defer span.End()

	requestCounter.Add(ctx, 1)
	start := time.Now()

	fail := func(err error) {
		kind := KindOf(err)
		observability.RecordError(ctx, span, logger, errorCounter, observability.ErrorReport{
			Operation:   "simulate",
			Kind:        string(kind),
			Message:     err.Error(),
			Err:         err,
			Status:      http.StatusInternalServerError,
			ClientFault: kind == KindDecode || kind == KindValidation || kind == KindCanceled,
		}, w)
	}

	var req SimulateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		fail(&Error{Kind: KindDecode, Err: err})
		return
	}
	if dec.More() {
		fail(&Error{Kind: KindDecode, Err: errTrailingData})
		return
	}

	span.SetAttributes(attribute.Int("simulation.surfaces", len(req.Surfaces)))

	plots, err := h.svc.Simulate(ctx, &req)
	if err != nil {
		fail(err)
		return
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	span.AddEvent("simulation.complete", trace.WithAttributes(
		attribute.Float64("duration_ms", elapsed),
	))
	span.SetStatus(codes.Ok, "")

	logger.Info("simulation completed",
		zap.Int("surfaces", len(req.Surfaces)),
		zap.String("request_id", requestID),
		zap.Float64("duration_ms", elapsed),
	)

	handlers.WriteJSON(w, http.StatusOK, SimulateResponse{Plots: plots})
}
