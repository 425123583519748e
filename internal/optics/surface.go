package optics

import (
	"fmt"
	"math"
)

// SurfaceType selects the sag equation of a surface.
type SurfaceType string

const (
	Standard    SurfaceType = "standard"
	EvenAsphere SurfaceType = "even_asphere"
	OddAsphere  SurfaceType = "odd_asphere"
)

func parseSurfaceType(s string) (SurfaceType, error) {
	switch t := SurfaceType(s); t {
	case Standard, EvenAsphere, OddAsphere:
		return t, nil
	default:
		return "", fmt.Errorf("%w: surface type %q", ErrUnsupported, s)
	}
}

// SurfaceOptions describes one AddSurface call. Nil fields take the
// documented defaults: plane radius, zero thickness, Air, standard surface,
// zero conic and no polynomial coefficients.
type SurfaceOptions struct {
	Index        int
	Radius       *float64
	Thickness    *float64
	Material     *string
	SurfaceType  *string
	Conic        *float64
	Coefficients []float64
	IsStop       bool
}

// Surface is a registered rotationally symmetric surface. Material is the
// medium between this surface and the next one.
type Surface struct {
	Index        int
	Radius       float64
	Curvature    float64
	Thickness    float64
	Conic        float64
	Coefficients []float64
	Type         SurfaceType
	Material     Material
	IsStop       bool
}

func newSurface(opts SurfaceOptions) (*Surface, error) {
	s := &Surface{
		Index:  opts.Index,
		Radius: math.Inf(1),
		Type:   Standard,
		IsStop: opts.IsStop,
	}

	if opts.Radius != nil {
		r := *opts.Radius
		if math.IsNaN(r) {
			return nil, fmt.Errorf("surface %d: radius is NaN", opts.Index)
		}
		// A zero radius is read as a plane, the same as an infinite one.
		if r != 0 && !math.IsInf(r, 0) {
			s.Radius = r
			s.Curvature = 1 / r
		}
	}

	if opts.Thickness != nil {
		if math.IsNaN(*opts.Thickness) {
			return nil, fmt.Errorf("surface %d: thickness is NaN", opts.Index)
		}
		s.Thickness = *opts.Thickness
	}

	if opts.Conic != nil {
		s.Conic = *opts.Conic
	}

	if opts.SurfaceType != nil {
		t, err := parseSurfaceType(*opts.SurfaceType)
		if err != nil {
			return nil, fmt.Errorf("surface %d: %w", opts.Index, err)
		}
		s.Type = t
	}

	if len(opts.Coefficients) > 0 {
		s.Coefficients = append([]float64(nil), opts.Coefficients...)
	}

	name := DefaultMaterial
	if opts.Material != nil {
		name = *opts.Material
	}
	m, err := LookupMaterial(name)
	if err != nil {
		return nil, fmt.Errorf("surface %d: %w", opts.Index, err)
	}
	s.Material = m

	return s, nil
}

// IsPlane reports whether the surface has no curvature and no polynomial terms.
func (s *Surface) IsPlane() bool {
	return s.Curvature == 0 && !s.aspheric()
}

func (s *Surface) aspheric() bool {
	return s.Type != Standard && len(s.Coefficients) > 0
}

// Sag returns the surface z offset from its vertex at radial distance r.
// ok is false outside the domain of the conic.
func (s *Surface) Sag(r float64) (z float64, ok bool) {
	z, _, ok = s.sagSlope(r)
	return z, ok
}

// sagSlope returns sag and dz/dr at radial distance r.
func (s *Surface) sagSlope(r float64) (z, dz float64, ok bool) {
	c, k := s.Curvature, s.Conic
	if c != 0 {
		arg := 1 - (1+k)*c*c*r*r
		if arg < 0 {
			return 0, 0, false
		}
		root := math.Sqrt(arg)
		z = c * r * r / (1 + root)
		if root == 0 {
			dz = math.Inf(1)
		} else {
			dz = c * r / root
		}
	}

	switch s.Type {
	case EvenAsphere:
		// coefficients[i] multiplies r^(2i+2)
		for i, a := range s.Coefficients {
			p := float64(2*i + 2)
			z += a * math.Pow(r, p)
			dz += a * p * math.Pow(r, p-1)
		}
	case OddAsphere:
		// coefficients[i] multiplies r^(i+1)
		for i, a := range s.Coefficients {
			p := float64(i + 1)
			z += a * math.Pow(r, p)
			dz += a * p * math.Pow(r, p-1)
		}
	}

	return z, dz, true
}

// normal returns the unit surface normal at a local point, oriented towards +z.
func (s *Surface) normal(p Vec3) (Vec3, bool) {
	r := math.Hypot(p.X, p.Y)
	if r == 0 {
		return Vec3{Z: 1}, true
	}
	_, dz, ok := s.sagSlope(r)
	if !ok || math.IsInf(dz, 0) {
		return Vec3{}, false
	}
	return Vec3{X: -dz * p.X / r, Y: -dz * p.Y / r, Z: 1}.Unit(), true
}

const (
	newtonMaxIter   = 50
	newtonTolerance = 1e-12
)

// intersect finds where ray meets the surface whose vertex sits at vertexZ.
// It returns the hit point in lens coordinates and the unit normal there.
func (s *Surface) intersect(ray Ray, vertexZ float64) (Vec3, Vec3, error) {
	local := Ray{Origin: ray.Origin.Sub(Vec3{Z: vertexZ}), Direction: ray.Direction}
	d := local.Direction

	t, ok := s.conicDistance(local.Origin, d)
	if !ok {
		return Vec3{}, Vec3{}, &RayError{Surface: s.Index, Reason: "ray misses surface"}
	}

	if s.aspheric() {
		converged := false
		for range newtonMaxIter {
			p := local.At(t)
			r := math.Hypot(p.X, p.Y)
			z, dz, ok := s.sagSlope(r)
			if !ok {
				return Vec3{}, Vec3{}, &RayError{Surface: s.Index, Reason: "ray leaves surface aperture"}
			}

			f := p.Z - z
			df := d.Z
			if r > 0 {
				df -= dz * (p.X*d.X + p.Y*d.Y) / r
			}
			if df == 0 {
				break
			}

			step := f / df
			t -= step
			if math.Abs(step) < newtonTolerance {
				converged = true
				break
			}
		}
		if !converged {
			return Vec3{}, Vec3{}, &RayError{Surface: s.Index, Reason: "intersection did not converge"}
		}
	}

	hit := local.At(t)
	n, ok := s.normal(hit)
	if !ok {
		return Vec3{}, Vec3{}, &RayError{Surface: s.Index, Reason: "ray leaves surface aperture"}
	}
	return hit.Add(Vec3{Z: vertexZ}), n, nil
}

// conicDistance solves the base conic (or plane) intersection in closed form,
// picking the root that tends to the plane solution as curvature vanishes.
func (s *Surface) conicDistance(o, d Vec3) (float64, bool) {
	c, k := s.Curvature, s.Conic
	if c == 0 {
		if d.Z == 0 {
			return 0, false
		}
		return -o.Z / d.Z, true
	}

	a := c * (d.X*d.X + d.Y*d.Y + (1+k)*d.Z*d.Z)
	b := d.Z - c*(o.X*d.X+o.Y*d.Y+(1+k)*o.Z*d.Z)
	cc := c*(o.X*o.X+o.Y*o.Y+(1+k)*o.Z*o.Z) - 2*o.Z

	disc := b*b - a*cc
	if disc < 0 {
		return 0, false
	}

	den := b + math.Copysign(math.Sqrt(disc), b)
	if den == 0 {
		return 0, false
	}
	t := cc / den

	p := Ray{Origin: o, Direction: d}.At(t)
	if 1-(1+k)*c*c*(p.X*p.X+p.Y*p.Y) < 0 {
		return 0, false
	}
	return t, true
}

// refract bends a unit direction at a surface with unit normal n, going from
// index n1 into n2.
func refract(d, n Vec3, n1, n2 float64, surface int) (Vec3, error) {
	if n1 == n2 {
		return d, nil
	}

	cosI := d.Dot(n)
	if cosI < 0 {
		n = n.Scale(-1)
		cosI = -cosI
	}

	mu := n1 / n2
	k := 1 - mu*mu*(1-cosI*cosI)
	if k < 0 {
		return Vec3{}, &RayError{Surface: surface, Reason: "total internal reflection"}
	}
	return d.Scale(mu).Add(n.Scale(math.Sqrt(k) - mu*cosI)).Unit(), nil
}
