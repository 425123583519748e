package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OTelOptions selects the signals exported over OTLP HTTP. Endpoints come
// from the standard OTEL_EXPORTER_OTLP_* variables.
type OTelOptions struct {
	Traces bool
	Logs   bool
	// SampleRatio is the fraction of root traces kept, in [0, 1].
	SampleRatio float64
}

// InitOTel sets the global propagator, installs a tracer provider when
// Traces is set and tees Logger into an OTLP log exporter when Logs is set.
// Call it after InitLogger. The returned function stops whatever was
// started, newest first.
func InitOTel(ctx context.Context, opts OTelOptions) (func(context.Context) error, error) {

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var stops []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i](ctx))
		}
		return errors.Join(errs...)
	}

	if !opts.Traces && !opts.Logs {
		return shutdown, nil
	}

	res, err := newResource(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Traces {
		tp, err := newTracerProvider(ctx, res, opts.SampleRatio)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		stops = append(stops, tp.Shutdown)
	}

	if opts.Logs {
		lp, err := newLoggerProvider(ctx, res)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		otelCore := otelzap.NewCore(ServiceName(), otelzap.WithLoggerProvider(lp))
		Logger = zap.New(zapcore.NewTee(Logger.Core(), otelCore), zap.AddStacktrace(zapcore.ErrorLevel))
		stops = append(stops, lp.Shutdown)
	}

	return shutdown, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, ratio float64) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}
