package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"opdo-sim/internal/analysis"
	"opdo-sim/internal/optics"
	"opdo-sim/internal/render"
)

// tracer is the simulation's dedicated OpenTelemetry tracer.
var tracer = otel.Tracer("simulation")

// DefaultNumRays is the number of rays per field in the ray trace plot.
const DefaultNumRays = 10

// Options configures a Service. Zero values take the defaults.
type Options struct {
	System        optics.System
	DPI           float64
	NumRays       int
	RenderTimeout time.Duration
}

// Service builds lenses and renders the three diagnostic plots. It keeps no
// state between calls.
type Service struct {
	opts  Options
	plots []renderer
}

func NewService(opts Options) *Service {
	if opts.System.ApertureType == "" {
		opts.System = optics.DefaultSystem()
	}
	if opts.DPI <= 0 {
		opts.DPI = render.DefaultDPI
	}
	if opts.NumRays <= 0 {
		opts.NumRays = DefaultNumRays
	}
	s := &Service{opts: opts}
	s.plots = s.renderers()
	return s
}

type renderer struct {
	name   string
	render func(*optics.Lens) (*render.Figure, error)
}

func (s *Service) renderers() []renderer {
	return []renderer{
		{name: PlotRaytrace, render: func(l *optics.Lens) (*render.Figure, error) {
			return analysis.Draw(l, s.opts.NumRays)
		}},
		{name: PlotDistortion, render: func(l *optics.Lens) (*render.Figure, error) {
			d, err := analysis.NewDistortion(l)
			if err != nil {
				return nil, err
			}
			return d.View()
		}},
		{name: PlotRayFan, render: func(l *optics.Lens) (*render.Figure, error) {
			rf, err := analysis.NewRayFan(l)
			if err != nil {
				return nil, err
			}
			return rf.View()
		}},
	}
}

// Simulate validates req, builds the lens and returns every plot as a PNG
// data URL keyed by plot name. Any failure discards all plots.
func (s *Service) Simulate(ctx context.Context, req *SimulateRequest) (map[string]string, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	lens, err := BuildLens(req.Surfaces, s.opts.System)
	if err != nil {
		return nil, &Error{Kind: KindBuild, Err: err}
	}
	surfaceGauge.Record(ctx, int64(len(req.Surfaces)))
	if efl := lens.FocalLength(); !math.IsInf(efl, 0) {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Float64("lens.efl_mm", efl))
	}

	if s.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RenderTimeout)
		defer cancel()
	}

	rs := s.plots
	urls := make([]string, len(rs))
	errs := make([]error, len(rs))

	// Every render owns its figure, so they run side by side. Errors are
	// reported in render order to keep failures reproducible.
	var g errgroup.Group
	for i, rd := range rs {
		g.Go(func() error {
			urls[i], errs[i] = s.renderOne(ctx, lens, rd)
			return errs[i]
		})
	}

	// Renders cannot be interrupted; on timeout or a dropped client the
	// request returns and the goroutines finish in the background.
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, firstError(errs)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &Error{Kind: KindCanceled, Err: ctx.Err()}
		}
		return nil, &Error{Kind: KindTimeout, Err: ctx.Err()}
	}

	plots := make(map[string]string, len(rs))
	for i, rd := range rs {
		plots[rd.name] = urls[i]
	}
	return plots, nil
}

func (s *Service) renderOne(ctx context.Context, lens *optics.Lens, rd renderer) (url string, err error) {
	ctx, span := tracer.Start(ctx, "simulation.render."+rd.name,
		trace.WithAttributes(attribute.String("simulation.plot", rd.name)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindRender, Plot: rd.name, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		renderHistogram.Record(ctx, elapsed, metric.WithAttributes(attribute.String("plot", rd.name)))
		span.SetStatus(codes.Ok, "")
	}()

	fig, err := rd.render(lens)
	if err != nil {
		return "", &Error{Kind: KindRender, Plot: rd.name, Err: err}
	}

	url, err = render.EncodeDataURL(fig, s.opts.DPI)
	if err != nil {
		return "", &Error{Kind: KindEncode, Plot: rd.name, Err: err}
	}
	return url, nil
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
