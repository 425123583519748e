// Package analysis renders diagnostic views of an optics.Lens. Each view
// returns its own render.Figure.
package analysis

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"opdo-sim/internal/optics"
	"opdo-sim/internal/render"
)

// profileSteps is the number of segments used to draw a surface profile.
const profileSteps = 40

// Draw renders a meridional (y-z) layout of the lens with numRays rays
// across the pupil for every field. Rays that fail are drawn up to the last
// surface they reached.
func Draw(lens *optics.Lens, numRays int) (*render.Figure, error) {
	if numRays < 1 {
		return nil, fmt.Errorf("draw: num rays must be positive, got %d", numRays)
	}

	la, err := lens.NewLauncher()
	if err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Ray trace"
	p.X.Label.Text = "Z [mm]"
	p.Y.Label.Text = "Y [mm]"
	p.Legend.Top = true

	surfaces := lens.Surfaces()
	semi := make([]float64, len(surfaces))

	// rays aimed at a distant entrance pupil start far upstream; the layout
	// shows only a short lead-in before surface 1
	drawStart := -math.Max(0.2*math.Abs(lens.VertexZ(lens.ImageIndex())), lens.EPD())

	for fi, field := range lens.Fields() {
		c := plotutil.Color(fi)
		var thumb *plotter.Line

		for k := range numRays {
			py := 0.0
			if numRays > 1 {
				py = -1 + 2*float64(k)/float64(numRays-1)
			}

			res, err := la.Trace(field, 0, py)
			if err != nil && !errors.Is(err, optics.ErrRayFailed) {
				return nil, fmt.Errorf("draw: %w", err)
			}

			if len(res.Points) < 2 {
				continue
			}

			xys := make(plotter.XYs, len(res.Points))
			for i, pt := range res.Points {
				xys[i] = plotter.XY{X: pt.Z, Y: pt.Y}
				if i > 0 {
					semi[i] = math.Max(semi[i], math.Abs(pt.Y))
				}
			}
			xys[0] = clipStart(xys[0], xys[1], drawStart)

			l, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("draw: %w", err)
			}
			l.LineStyle.Color = c
			l.LineStyle.Width = vg.Points(0.75)
			p.Add(l)
			thumb = l
		}

		if thumb != nil {
			p.Legend.Add(fmt.Sprintf("%.1f°", field), thumb)
		}
	}

	if err := addProfiles(p, lens, semi); err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}

	return render.Single(p, 8*vg.Inch, 4*vg.Inch), nil
}

// clipStart moves a segment's start forward along the segment to z = start
// when it lies further upstream.
func clipStart(from, to plotter.XY, start float64) plotter.XY {
	if from.X >= start || to.X <= start {
		return from
	}
	s := (start - from.X) / (to.X - from.X)
	return plotter.XY{X: start, Y: from.Y + s*(to.Y-from.Y)}
}

// addProfiles draws every surface from the first real one to the image,
// plus edges closing each glass element.
func addProfiles(p *plot.Plot, lens *optics.Lens, semi []float64) error {
	surfaces := lens.Surfaces()
	fallback := lens.EPD() / 2

	edges := make([]plotter.XY, len(surfaces))
	for i := 1; i < len(surfaces); i++ {
		s := surfaces[i]
		h := semi[i] * 1.05
		if h == 0 {
			h = fallback
		}

		steps := profileSteps
		if s.IsPlane() {
			steps = 1
		}

		z0 := lens.VertexZ(i)
		xys := make(plotter.XYs, 0, steps+1)
		for k := 0; k <= steps; k++ {
			y := -h + 2*h*float64(k)/float64(steps)
			z, ok := s.Sag(math.Abs(y))
			if !ok {
				continue
			}
			xys = append(xys, plotter.XY{X: z0 + z, Y: y})
		}
		if len(xys) < 2 {
			continue
		}
		edges[i] = xys[len(xys)-1]

		l, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		l.LineStyle.Color = color.Black
		l.LineStyle.Width = vg.Points(1)
		if s.IsStop {
			l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(l)
	}

	// close elements whose following medium is not air
	for i := 1; i < len(surfaces)-1; i++ {
		if surfaces[i].Material.IsAir() {
			continue
		}
		a, b := edges[i], edges[i+1]
		if a == (plotter.XY{}) || b == (plotter.XY{}) {
			continue
		}

		top := math.Max(a.Y, b.Y)
		for _, sign := range []float64{1, -1} {
			l, err := plotter.NewLine(plotter.XYs{{X: a.X, Y: sign * top}, {X: b.X, Y: sign * top}})
			if err != nil {
				return err
			}
			l.LineStyle.Color = color.Black
			l.LineStyle.Width = vg.Points(1)
			p.Add(l)
		}
	}
	return nil
}
