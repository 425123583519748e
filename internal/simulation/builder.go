package simulation

import (
	"fmt"
	"math"

	"opdo-sim/internal/optics"
)

// BuildLens registers the object plane, the client surfaces at indices
// 1..N and a stop at N+1, then applies sys. Optional fields the client left
// out are left out of the registration as well.
func BuildLens(surfaces []SurfaceSpec, sys optics.System) (*optics.Lens, error) {
	lens := optics.NewLens()

	objectThickness := math.Inf(1)
	if err := lens.AddSurface(optics.SurfaceOptions{Index: 0, Thickness: &objectThickness}); err != nil {
		return nil, fmt.Errorf("object plane: %w", err)
	}

	for i, s := range surfaces {
		material := s.Material
		if material == nil {
			def := optics.DefaultMaterial
			material = &def
		}

		opts := optics.SurfaceOptions{
			Index:        i + 1,
			Radius:       s.Radius,
			Thickness:    s.Thickness,
			Material:     material,
			SurfaceType:  s.SurfaceType,
			Conic:        s.Conic,
			Coefficients: s.Coefficients,
		}
		if err := lens.AddSurface(opts); err != nil {
			return nil, err
		}
	}

	if err := lens.AddSurface(optics.SurfaceOptions{Index: len(surfaces) + 1, IsStop: true}); err != nil {
		return nil, fmt.Errorf("stop: %w", err)
	}

	if err := sys.Apply(lens); err != nil {
		return nil, err
	}
	return lens, nil
}
