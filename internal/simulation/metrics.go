package simulation

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metric instruments, initialized once via InitMetrics().
var (
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	renderHistogram metric.Float64Histogram
	surfaceGauge    metric.Int64Gauge
)

// InitMetrics registers the simulation metric instruments. Call this once at
// startup (after observability.InitMetrics).
func InitMetrics() error {
	meter := otel.Meter("simulation")

	var err error

	requestCounter, err = meter.Int64Counter("simulation.requests.total",
		metric.WithDescription("Total number of simulation requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("creating request counter: %w", err)
	}

	errorCounter, err = meter.Int64Counter("simulation.errors.total",
		metric.WithDescription("Total number of failed simulations by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("creating error counter: %w", err)
	}

	renderHistogram, err = meter.Float64Histogram("simulation.render.duration",
		metric.WithDescription("Duration of a single plot render and encode in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return fmt.Errorf("creating render histogram: %w", err)
	}

	surfaceGauge, err = meter.Int64Gauge("simulation.lens.surfaces",
		metric.WithDescription("Number of client surfaces in the last simulated lens"),
		metric.WithUnit("{surface}"),
	)
	if err != nil {
		return fmt.Errorf("creating surface gauge: %w", err)
	}

	return nil
}
