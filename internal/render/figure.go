// Package render turns gonum plots into PNG data URLs.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DataURLPrefix starts every encoded figure.
const DataURLPrefix = "data:image/png;base64,"

// DefaultDPI is the resolution used when none is configured.
const DefaultDPI float64 = 300

var ErrReleased = errors.New("figure already released")

// Figure is a grid of plots drawn onto one image. Every analysis returns its
// own Figure, so concurrent renders never share drawing state.
type Figure struct {
	plots  [][]*plot.Plot
	width  vg.Length
	height vg.Length
}

// NewFigure creates an empty rows x cols grid of the given page size.
func NewFigure(rows, cols int, width, height vg.Length) *Figure {
	plots := make([][]*plot.Plot, rows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, cols)
	}
	return &Figure{plots: plots, width: width, height: height}
}

// Single wraps one plot in a 1x1 figure.
func Single(p *plot.Plot, width, height vg.Length) *Figure {
	f := NewFigure(1, 1, width, height)
	f.Set(0, 0, p)
	return f
}

// Set places p at row, col.
func (f *Figure) Set(row, col int, p *plot.Plot) {
	f.plots[row][col] = p
}

// Plot returns the plot at row, col, or nil.
func (f *Figure) Plot(row, col int) *plot.Plot {
	if f.plots == nil {
		return nil
	}
	return f.plots[row][col]
}

func (f *Figure) Rows() int { return len(f.plots) }

func (f *Figure) Cols() int {
	if len(f.plots) == 0 {
		return 0
	}
	return len(f.plots[0])
}

// Release drops the plots held by f. It is safe to call more than once.
func (f *Figure) Release() {
	f.plots = nil
}

// WritePNG draws the figure at dpi and writes it as PNG.
func (f *Figure) WritePNG(w io.Writer, dpi float64) error {
	if f.plots == nil {
		return ErrReleased
	}
	if dpi <= 0 {
		return fmt.Errorf("invalid dpi %g", dpi)
	}

	img := vgimg.NewWith(vgimg.UseWH(f.width, f.height), vgimg.UseDPI(int(dpi)))
	dc := draw.New(img)

	if f.Rows() == 1 && f.Cols() == 1 {
		if p := f.plots[0][0]; p != nil {
			p.Draw(dc)
		}
	} else {
		tiles := draw.Tiles{
			Rows:      f.Rows(),
			Cols:      f.Cols(),
			PadX:      vg.Millimeter * 4,
			PadY:      vg.Millimeter * 4,
			PadTop:    vg.Millimeter * 2,
			PadBottom: vg.Millimeter * 2,
			PadLeft:   vg.Millimeter * 2,
			PadRight:  vg.Millimeter * 2,
		}
		canvases := plot.Align(f.plots, tiles, dc)
		for i := range f.plots {
			for j, p := range f.plots[i] {
				if p != nil {
					p.Draw(canvases[i][j])
				}
			}
		}
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// EncodeDataURL renders f to PNG at dpi and returns it as a base64 data URL.
// The figure is released afterwards, whether or not encoding succeeded.
func EncodeDataURL(f *Figure, dpi float64) (string, error) {
	defer f.Release()

	var buf bytes.Buffer
	if err := f.WritePNG(&buf, dpi); err != nil {
		return "", err
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
