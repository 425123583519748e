package optics

import (
	"fmt"
	"math"
)

const paraxialEpsilon = 1e-12

// paraxialTrace follows a paraxial ray that arrives at surface 1 with height
// y and object-space slope u. It returns the height at every surface
// (heights[0] is unused) and the slope after the last surface.
func (l *Lens) paraxialTrace(y, u, wavelength float64) (heights []float64, slope float64) {
	n := l.indices(wavelength)
	heights = make([]float64, len(l.surfaces))

	for i := 1; i < len(l.surfaces); i++ {
		s := l.surfaces[i]
		heights[i] = y

		// n'u' = nu - y c (n' - n)
		u = (n[i-1]*u - y*s.Curvature*(n[i]-n[i-1])) / n[i]
		y += s.Thickness * u
	}
	return heights, u
}

// EntrancePupil is the paraxial image of the stop seen from object space.
type EntrancePupil struct {
	// Z is the pupil position relative to the surface 1 vertex.
	Z        float64
	Diameter float64
}

// EntrancePupil locates the paraxial entrance pupil at the primary
// wavelength.
func (l *Lens) EntrancePupil() (EntrancePupil, error) {
	if err := l.Validate(); err != nil {
		return EntrancePupil{}, err
	}

	stop := l.StopIndex()
	wl := l.Wavelength()

	// A ray crossing the axis at z = p in object space with slope u meets
	// surface 1 at height -p*u, so its stop height is u*(yB - p*yA).
	hA, _ := l.paraxialTrace(1, 0, wl)
	hB, _ := l.paraxialTrace(0, 1, wl)
	yA, yB := hA[stop], hB[stop]

	if math.Abs(yA) < paraxialEpsilon {
		return EntrancePupil{}, fmt.Errorf("%w: entrance pupil at infinity", ErrInvalidLens)
	}
	return EntrancePupil{Z: yB / yA, Diameter: l.apertureValue}, nil
}

// FocalLength returns the paraxial effective focal length, or +Inf for an
// afocal lens.
func (l *Lens) FocalLength() float64 {
	_, u := l.paraxialTrace(1, 0, l.Wavelength())
	if math.Abs(u) < paraxialEpsilon {
		return math.Inf(1)
	}
	// power = -n'u'/y for a unit-height ray entering parallel to the axis
	n := l.surfaces[len(l.surfaces)-1].Material.N(l.Wavelength())
	return -1 / (n * u)
}

// ParaxialChiefHeight returns the paraxial chief ray height on the image
// surface for a field angle in degrees.
func (l *Lens) ParaxialChiefHeight(field float64) (float64, error) {
	ep, err := l.EntrancePupil()
	if err != nil {
		return 0, err
	}
	u := math.Tan(field * math.Pi / 180)
	heights, _ := l.paraxialTrace(-ep.Z*u, u, l.Wavelength())
	return heights[l.ImageIndex()], nil
}

// TraceResult holds the points where a real ray met each surface, starting
// with the launch point.
type TraceResult struct {
	Points []Vec3
	// Direction after the last surface reached.
	Direction Vec3
}

// Image returns the point on the image surface.
func (r TraceResult) Image() Vec3 {
	return r.Points[len(r.Points)-1]
}

// Trace follows a real ray through surfaces 1..image at the given
// wavelength. On failure the partial path is returned with the error.
func (l *Lens) Trace(ray Ray, wavelength float64) (TraceResult, error) {
	n := l.indices(wavelength)
	res := TraceResult{Points: []Vec3{ray.Origin}, Direction: ray.Direction}

	last := l.ImageIndex()
	for i := 1; i <= last; i++ {
		s := l.surfaces[i]

		hit, normal, err := s.intersect(ray, l.VertexZ(i))
		if err != nil {
			return res, err
		}
		res.Points = append(res.Points, hit)

		if i == last {
			break
		}

		dir, err := refract(ray.Direction, normal, n[i-1], n[i], i)
		if err != nil {
			return res, err
		}
		ray = Ray{Origin: hit, Direction: dir}
		res.Direction = dir
	}
	return res, nil
}

// Launcher creates real rays for normalized pupil coordinates aimed at the
// paraxial entrance pupil.
type Launcher struct {
	lens  *Lens
	pupil EntrancePupil
	// StartZ is the axial position rays start from.
	StartZ float64
}

// NewLauncher prepares ray launching. Rays start ahead of both the entrance
// pupil and surface 1.
func (l *Lens) NewLauncher() (*Launcher, error) {
	ep, err := l.EntrancePupil()
	if err != nil {
		return nil, err
	}

	lead := math.Max(0.2*math.Abs(l.VertexZ(l.ImageIndex())), ep.Diameter)
	return &Launcher{
		lens:   l,
		pupil:  ep,
		StartZ: math.Min(ep.Z, 0) - lead,
	}, nil
}

// Ray builds the ray for a field angle in degrees through pupil point
// (px, py), both in [-1, 1].
func (la *Launcher) Ray(field, px, py float64) Ray {
	theta := field * math.Pi / 180
	dir := Vec3{Y: math.Sin(theta), Z: math.Cos(theta)}

	r := la.pupil.Diameter / 2
	target := Vec3{X: px * r, Y: py * r, Z: la.pupil.Z}

	back := (la.pupil.Z - la.StartZ) / dir.Z
	return Ray{Origin: target.Sub(dir.Scale(back)), Direction: dir}
}

// Trace launches and traces a ray at the primary wavelength.
func (la *Launcher) Trace(field, px, py float64) (TraceResult, error) {
	return la.lens.Trace(la.Ray(field, px, py), la.lens.Wavelength())
}
