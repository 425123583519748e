// Package optics models a sequential, rotationally symmetric lens and traces
// paraxial and real rays through it.
//
// A Lens is built surface by surface, object plane first. The object sits at
// infinity and the last registered surface is the image surface. Once built,
// a Lens is only read by the trace methods and may be shared by goroutines.
package optics

import (
	"fmt"
	"math"
)

// ApertureType names how the system aperture is specified.
type ApertureType string

// FieldType names how field points are specified.
type FieldType string

const (
	// ApertureEPD sets the entrance pupil diameter in lens units.
	ApertureEPD ApertureType = "EPD"

	// FieldAngle gives fields as object-space angles in degrees.
	FieldAngle FieldType = "angle"
)

type Lens struct {
	surfaces []*Surface
	// vertexZ[i] is the axial position of surface i, filled by AddSurface.
	vertexZ []float64

	apertureType  ApertureType
	apertureValue float64
	fieldType     FieldType
	fields        []float64
	wavelengths   []float64
}

func NewLens() *Lens {
	return &Lens{}
}

// AddSurface registers the next surface. Indices are contiguous from 0 and
// index 0 is the object plane, which must have infinite thickness.
func (l *Lens) AddSurface(opts SurfaceOptions) error {
	if opts.Index != len(l.surfaces) {
		return fmt.Errorf("%w: got %d, want %d", ErrSurfaceIndex, opts.Index, len(l.surfaces))
	}

	s, err := newSurface(opts)
	if err != nil {
		return err
	}

	if s.Index == 0 {
		if !math.IsInf(s.Thickness, 1) {
			return fmt.Errorf("%w: object at finite distance", ErrUnsupported)
		}
		if s.IsStop {
			return fmt.Errorf("%w: object plane cannot be the stop", ErrInvalidLens)
		}
	} else if math.IsInf(s.Thickness, 0) {
		return fmt.Errorf("%w: surface %d has infinite thickness", ErrInvalidLens, s.Index)
	}

	if s.IsStop && l.StopIndex() >= 0 {
		return fmt.Errorf("%w: surface %d is a second stop", ErrInvalidLens, s.Index)
	}

	z := 0.0
	if n := len(l.surfaces); n >= 2 {
		z = l.vertexZ[n-1] + l.surfaces[n-1].Thickness
	}
	l.surfaces = append(l.surfaces, s)
	l.vertexZ = append(l.vertexZ, z)
	return nil
}

func (l *Lens) SetAperture(t ApertureType, value float64) error {
	if t != ApertureEPD {
		return fmt.Errorf("%w: aperture type %q", ErrUnsupported, t)
	}
	if !(value > 0) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: aperture value %g", ErrInvalidLens, value)
	}
	l.apertureType = t
	l.apertureValue = value
	return nil
}

func (l *Lens) SetFieldType(t FieldType) error {
	if t != FieldAngle {
		return fmt.Errorf("%w: field type %q", ErrUnsupported, t)
	}
	l.fieldType = t
	return nil
}

// AddField adds a field angle in degrees along y.
func (l *Lens) AddField(y float64) error {
	if math.IsNaN(y) || math.Abs(y) >= 90 {
		return fmt.Errorf("%w: field angle %g", ErrInvalidLens, y)
	}
	l.fields = append(l.fields, y)
	return nil
}

// AddWavelength adds a wavelength in micrometres. The first one added is
// the primary wavelength used by the analyses.
func (l *Lens) AddWavelength(um float64) error {
	if !(um > 0) || math.IsInf(um, 0) {
		return fmt.Errorf("%w: wavelength %g", ErrInvalidLens, um)
	}
	l.wavelengths = append(l.wavelengths, um)
	return nil
}

func (l *Lens) Surfaces() []*Surface { return l.surfaces }
func (l *Lens) Fields() []float64    { return l.fields }
func (l *Lens) EPD() float64         { return l.apertureValue }

// Wavelength returns the primary wavelength.
func (l *Lens) Wavelength() float64 {
	if len(l.wavelengths) == 0 {
		return 0
	}
	return l.wavelengths[0]
}

// MaxField returns the largest absolute field angle.
func (l *Lens) MaxField() float64 {
	m := 0.0
	for _, f := range l.fields {
		m = math.Max(m, math.Abs(f))
	}
	return m
}

// StopIndex returns the index of the stop surface, or -1.
func (l *Lens) StopIndex() int {
	for _, s := range l.surfaces {
		if s.IsStop {
			return s.Index
		}
	}
	return -1
}

// ImageIndex returns the index of the last surface.
func (l *Lens) ImageIndex() int {
	return len(l.surfaces) - 1
}

// VertexZ returns the axial position of surface i (i >= 1). Surface 1 sits
// at z = 0.
func (l *Lens) VertexZ(i int) float64 {
	return l.vertexZ[i]
}

// Validate checks that the lens is complete enough to trace.
func (l *Lens) Validate() error {
	switch {
	case len(l.surfaces) < 2:
		return fmt.Errorf("%w: need an object plane and at least one surface", ErrInvalidLens)
	case l.StopIndex() < 0:
		return fmt.Errorf("%w: no stop surface", ErrInvalidLens)
	case l.apertureType == "":
		return fmt.Errorf("%w: aperture not set", ErrInvalidLens)
	case l.fieldType == "":
		return fmt.Errorf("%w: field type not set", ErrInvalidLens)
	case len(l.fields) == 0:
		return fmt.Errorf("%w: no fields", ErrInvalidLens)
	case len(l.wavelengths) == 0:
		return fmt.Errorf("%w: no wavelengths", ErrInvalidLens)
	}
	return nil
}

// indices returns the refractive index of the medium after every surface
// at the given wavelength. indices[0] is object space.
func (l *Lens) indices(wavelength float64) []float64 {
	n := make([]float64, len(l.surfaces))
	for i, s := range l.surfaces {
		n[i] = s.Material.N(wavelength)
	}
	return n
}

// System is the aperture, field and wavelength setup applied to a lens
// after its surfaces are registered.
type System struct {
	ApertureType  ApertureType
	ApertureValue float64
	FieldType     FieldType
	Fields        []float64
	Wavelengths   []float64
}

// DefaultSystem is a 10 mm entrance pupil, on-axis and 5 degree fields at
// 0.55 um.
func DefaultSystem() System {
	return System{
		ApertureType:  ApertureEPD,
		ApertureValue: 10,
		FieldType:     FieldAngle,
		Fields:        []float64{0, 5},
		Wavelengths:   []float64{0.55},
	}
}

// Apply configures l with the system settings.
func (s System) Apply(l *Lens) error {
	if err := l.SetAperture(s.ApertureType, s.ApertureValue); err != nil {
		return err
	}
	if err := l.SetFieldType(s.FieldType); err != nil {
		return err
	}
	for _, f := range s.Fields {
		if err := l.AddField(f); err != nil {
			return err
		}
	}
	for _, w := range s.Wavelengths {
		if err := l.AddWavelength(w); err != nil {
			return err
		}
	}
	return nil
}
