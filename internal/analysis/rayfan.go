package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"opdo-sim/internal/optics"
	"opdo-sim/internal/render"
)

// RayFanSamples is the number of pupil points per fan.
const RayFanSamples = 65

// FanPoint is the transverse ray error at one normalized pupil coordinate.
type FanPoint struct {
	Pupil float64
	Error float64
}

// Fan is the tangential and sagittal ray fan of one field.
type Fan struct {
	Field      float64
	Tangential []FanPoint
	Sagittal   []FanPoint
}

// RayFan holds one Fan per lens field.
type RayFan struct {
	Fans []Fan
}

// NewRayFan traces tangential (y) and sagittal (x) fans for every field and
// records the image-plane error relative to the chief ray. Rays that fail
// are left out of the fan. A field whose chief ray fails gets an empty fan;
// it is an error only when that happens for every field.
func NewRayFan(lens *optics.Lens) (*RayFan, error) {
	la, err := lens.NewLauncher()
	if err != nil {
		return nil, fmt.Errorf("ray fan: %w", err)
	}

	rf := &RayFan{Fans: make([]Fan, 0, len(lens.Fields()))}
	traced := 0
	var lastErr error
	for _, field := range lens.Fields() {
		fan := Fan{Field: field}

		chief, err := la.Trace(field, 0, 0)
		if errors.Is(err, optics.ErrRayFailed) {
			lastErr = fmt.Errorf("chief ray at %.1f°: %w", field, err)
			rf.Fans = append(rf.Fans, fan)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ray fan: %w", err)
		}
		ref := chief.Image()
		traced++

		for i := range RayFanSamples {
			p := -1 + 2*float64(i)/float64(RayFanSamples-1)

			if res, err := la.Trace(field, 0, p); err == nil {
				fan.Tangential = append(fan.Tangential, FanPoint{Pupil: p, Error: res.Image().Y - ref.Y})
			} else if !errors.Is(err, optics.ErrRayFailed) {
				return nil, fmt.Errorf("ray fan: %w", err)
			}

			if res, err := la.Trace(field, p, 0); err == nil {
				fan.Sagittal = append(fan.Sagittal, FanPoint{Pupil: p, Error: res.Image().X - ref.X})
			} else if !errors.Is(err, optics.ErrRayFailed) {
				return nil, fmt.Errorf("ray fan: %w", err)
			}
		}
		rf.Fans = append(rf.Fans, fan)
	}

	if traced == 0 {
		return nil, fmt.Errorf("ray fan: no chief ray reached the image: %w", lastErr)
	}
	return rf, nil
}

// View draws one row per field: tangential fan on the left, sagittal on the
// right, all sharing a symmetric error scale.
func (rf *RayFan) View() (*render.Figure, error) {
	if len(rf.Fans) == 0 {
		return nil, errors.New("ray fan: no fields")
	}

	limit := 0.0
	for _, f := range rf.Fans {
		for _, pt := range f.Tangential {
			limit = math.Max(limit, math.Abs(pt.Error))
		}
		for _, pt := range f.Sagittal {
			limit = math.Max(limit, math.Abs(pt.Error))
		}
	}
	if limit == 0 {
		limit = 1
	}
	limit *= 1.1

	rows := len(rf.Fans)
	fig := render.NewFigure(rows, 2, 8*vg.Inch, vg.Length(3*rows)*vg.Inch)

	for r, f := range rf.Fans {
		tan, err := fanPlot(f.Tangential, fmt.Sprintf("Tangential, %.1f°", f.Field), "Py", "εy [mm]", limit)
		if err != nil {
			return nil, err
		}
		sag, err := fanPlot(f.Sagittal, fmt.Sprintf("Sagittal, %.1f°", f.Field), "Px", "εx [mm]", limit)
		if err != nil {
			return nil, err
		}
		fig.Set(r, 0, tan)
		fig.Set(r, 1, sag)
	}
	return fig, nil
}

func fanPlot(pts []FanPoint, title, xLabel, yLabel string, limit float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	if len(pts) > 0 {
		xys := make(plotter.XYs, len(pts))
		for i, pt := range pts {
			xys[i] = plotter.XY{X: pt.Pupil, Y: pt.Error}
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("ray fan: %w", err)
		}
		l.LineStyle.Width = vg.Points(1.5)
		p.Add(l)
	}

	p.X.Min, p.X.Max = -1, 1
	p.Y.Min, p.Y.Max = -limit, limit
	return p, nil
}
