package main

import (
	"context"

	"opdo-sim/internal/observability"
	"opdo-sim/internal/simulation"
)

// initMetrics initialises the meter provider and the simulation metric
// instruments. OTLP export follows the OTel switch; /metrics is always served.
func initMetrics(ctx context.Context, exportOTLP bool) (func(context.Context) error, error) {
	shutdown, err := observability.InitMetrics(ctx, exportOTLP)
	if err != nil {
		return nil, err
	}

	if err := simulation.InitMetrics(); err != nil {
		return nil, err
	}

	return shutdown, nil
}
