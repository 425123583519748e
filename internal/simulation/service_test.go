package simulation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opdo-sim/internal/optics"
	"opdo-sim/internal/render"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	require.NoError(t, InitMetrics())
	if opts.DPI == 0 {
		opts.DPI = 40
	}
	return NewService(opts)
}

func singletRequest() *SimulateRequest {
	return &SimulateRequest{Surfaces: []SurfaceSpec{
		{Radius: ptr(50.0), Thickness: ptr(5.0), Material: ptr("N-BK7")},
	}}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(Options{})
	assert.Equal(t, optics.DefaultSystem(), svc.opts.System)
	assert.Equal(t, render.DefaultDPI, svc.opts.DPI)
	assert.Equal(t, DefaultNumRays, svc.opts.NumRays)
}

func TestSimulateRendersAllPlots(t *testing.T) {
	svc := newTestService(t, Options{})

	plots, err := svc.Simulate(context.Background(), singletRequest())
	require.NoError(t, err)

	require.Len(t, plots, 3)
	for _, name := range []string{PlotRaytrace, PlotDistortion, PlotRayFan} {
		assert.True(t, strings.HasPrefix(plots[name], render.DataURLPrefix), name)
	}
}

func TestSimulateStopOnly(t *testing.T) {
	svc := newTestService(t, Options{})

	plots, err := svc.Simulate(context.Background(), &SimulateRequest{Surfaces: []SurfaceSpec{}})
	require.NoError(t, err)
	assert.Len(t, plots, 3)
}

func TestSimulateValidationError(t *testing.T) {
	svc := newTestService(t, Options{})

	plots, err := svc.Simulate(context.Background(), &SimulateRequest{})
	assert.Nil(t, plots)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestSimulateBuildError(t *testing.T) {
	svc := newTestService(t, Options{})

	_, err := svc.Simulate(context.Background(), &SimulateRequest{Surfaces: []SurfaceSpec{
		{Radius: ptr(50.0), Thickness: ptr(5.0), Material: ptr("UNOBTAINIUM")},
	}})
	assert.Equal(t, KindBuild, KindOf(err))
	assert.ErrorIs(t, err, optics.ErrUnknownMaterial)
}

func TestSimulateReportsFirstFailingPlot(t *testing.T) {
	svc := newTestService(t, Options{})

	release := make(chan struct{})
	svc.plots = []renderer{
		{name: "slow", render: func(*optics.Lens) (*render.Figure, error) {
			<-release
			return nil, errors.New("slow failure")
		}},
		{name: "fast", render: func(*optics.Lens) (*render.Figure, error) {
			defer close(release)
			return nil, errors.New("fast failure")
		}},
	}

	_, err := svc.Simulate(context.Background(), singletRequest())
	require.Error(t, err)
	assert.Equal(t, "render slow: slow failure", err.Error())
	assert.Equal(t, KindRender, KindOf(err))
}

func TestSimulateRecoversRenderPanic(t *testing.T) {
	svc := newTestService(t, Options{})
	svc.plots = []renderer{
		{name: "broken", render: func(*optics.Lens) (*render.Figure, error) {
			panic("nil figure")
		}},
	}

	_, err := svc.Simulate(context.Background(), singletRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: nil figure")
}

func TestSimulateTimeout(t *testing.T) {
	svc := newTestService(t, Options{RenderTimeout: 10 * time.Millisecond})

	release := make(chan struct{})
	defer close(release)
	svc.plots = []renderer{
		{name: "stuck", render: func(*optics.Lens) (*render.Figure, error) {
			<-release
			return nil, errors.New("released")
		}},
	}

	_, err := svc.Simulate(context.Background(), singletRequest())
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimulateClientGone(t *testing.T) {
	svc := newTestService(t, Options{})

	release := make(chan struct{})
	defer close(release)
	svc.plots = []renderer{
		{name: "stuck", render: func(*optics.Lens) (*render.Figure, error) {
			<-release
			return nil, errors.New("released")
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Simulate(ctx, singletRequest())
	require.Error(t, err)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulateFocusedSinglet(t *testing.T) {
	svc := newTestService(t, Options{})

	plots, err := svc.Simulate(context.Background(), &SimulateRequest{Surfaces: []SurfaceSpec{
		{Radius: ptr(50.0), Thickness: ptr(5.0), Material: ptr("N-BK7")},
		{Radius: ptr(-50.0), Thickness: ptr(47.5)},
	}})
	require.NoError(t, err)
	assert.Len(t, plots, 3)
}
