package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"opdo-sim/internal/config"
	"opdo-sim/internal/observability"
	"opdo-sim/internal/server"
	"opdo-sim/internal/simulation"
)

func main() {

	ctx := context.Background()

	if err := loadDotEnv(dotEnvFiles()...); err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Logger
	if err := observability.InitLogger(cfg.Log.Level); err != nil {
		panic(err)
	}
	defer observability.SyncLogger()

	// Tracing and log export
	otelShutdown, err := observability.InitOTel(ctx, observability.OTelOptions{
		Traces:      cfg.OTel.Enabled,
		Logs:        cfg.OTel.Enabled && cfg.OTel.LogsEnabled,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		panic(err)
	}
	defer otelShutdown(ctx)

	// Metrics
	metricShutdown, err := initMetrics(ctx, cfg.OTel.Enabled)
	if err != nil {
		panic(err)
	}
	defer metricShutdown(ctx)

	// Simulation
	svc := simulation.NewService(simulation.Options{
		System:        cfg.Simulation.System(),
		DPI:           cfg.Simulation.DPI,
		NumRays:       cfg.Simulation.NumRays,
		RenderTimeout: cfg.Simulation.RenderTimeout,
	})
	handler := simulation.NewHandler(svc, cfg.Simulation.MaxBodyBytes)

	// Router
	router := server.NewRouter(handler, cfg.RateLimit)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		observability.Logger.Info("server started",
			zap.String("addr", srv.Addr),
			zap.Bool("otel", cfg.OTel.Enabled),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	waitForShutdown(srv, cfg.Server.ShutdownTimeout)
}

func waitForShutdown(srv *http.Server, timeout time.Duration) {

	stop := make(chan os.Signal, 1)

	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		observability.Logger.Error("shutdown failed", zap.Error(err))
		return
	}
	observability.Logger.Info("server stopped")
}
