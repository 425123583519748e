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

// DistortionSamples is the number of field angles sampled between the axis
// and the largest field.
const DistortionSamples = 64

// paraxialFloor is the paraxial image height below which distortion is
// reported as zero.
const paraxialFloor = 1e-9

// Distortion holds percent distortion of the real chief ray relative to the
// paraxial chief ray, sampled over the field. Fields whose chief ray fails
// are left out, so Fields may hold fewer than DistortionSamples entries.
type Distortion struct {
	Fields  []float64
	Percent []float64
}

// NewDistortion traces the chief ray at DistortionSamples field angles from
// 0 to the lens's largest field. It fails only when no chief ray gets
// through.
func NewDistortion(lens *optics.Lens) (*Distortion, error) {
	la, err := lens.NewLauncher()
	if err != nil {
		return nil, fmt.Errorf("distortion: %w", err)
	}

	maxField := lens.MaxField()
	n := DistortionSamples
	if maxField == 0 {
		n = 1
	}

	d := &Distortion{
		Fields:  make([]float64, 0, n),
		Percent: make([]float64, 0, n),
	}

	var lastErr error

	for i := range n {
		field := 0.0
		if n > 1 {
			field = maxField * float64(i) / float64(n-1)
		}

		res, err := la.Trace(field, 0, 0)
		if errors.Is(err, optics.ErrRayFailed) {
			lastErr = fmt.Errorf("chief ray at %.2f°: %w", field, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("distortion: %w", err)
		}
		ideal, err := lens.ParaxialChiefHeight(field)
		if err != nil {
			return nil, fmt.Errorf("distortion: %w", err)
		}

		pct := 0.0
		if math.Abs(ideal) > paraxialFloor {
			pct = 100 * (res.Image().Y - ideal) / ideal
		}
		d.Fields = append(d.Fields, field)
		d.Percent = append(d.Percent, pct)
	}

	if len(d.Fields) == 0 {
		return nil, fmt.Errorf("distortion: no chief ray reached the image: %w", lastErr)
	}
	return d, nil
}

// View plots distortion (x) against field angle (y).
func (d *Distortion) View() (*render.Figure, error) {
	if len(d.Fields) == 0 {
		return nil, errors.New("distortion: no samples")
	}

	xys := make(plotter.XYs, len(d.Fields))
	limit := 0.0
	for i := range d.Fields {
		xys[i] = plotter.XY{X: d.Percent[i], Y: d.Fields[i]}
		limit = math.Max(limit, math.Abs(d.Percent[i]))
	}

	p := plot.New()
	p.Title.Text = "Distortion"
	p.X.Label.Text = "Distortion [%]"
	p.Y.Label.Text = "Field [deg]"
	p.Add(plotter.NewGrid())

	l, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("distortion: %w", err)
	}
	l.LineStyle.Width = vg.Points(1.5)
	p.Add(l)

	if limit == 0 {
		limit = 1
	}
	p.X.Min, p.X.Max = -1.1*limit, 1.1*limit
	p.Y.Min = 0
	if top := d.Fields[len(d.Fields)-1]; top > 0 {
		p.Y.Max = top
	} else {
		p.Y.Max = 1
	}

	return render.Single(p, 5*vg.Inch, 5*vg.Inch), nil
}
