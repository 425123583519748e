package optics

import (
	"errors"
	"fmt"
)

var (
	ErrSurfaceIndex    = errors.New("surface index out of sequence")
	ErrUnknownMaterial = errors.New("unknown material")
	ErrUnsupported     = errors.New("unsupported configuration")
	ErrInvalidLens     = errors.New("invalid lens")
	ErrRayFailed       = errors.New("ray trace failed")
)

// RayError reports the surface at which a real ray could not continue.
type RayError struct {
	Surface int
	Reason  string
}

func (e *RayError) Error() string {
	return fmt.Sprintf("ray trace failed at surface %d: %s", e.Surface, e.Reason)
}

func (e *RayError) Unwrap() error { return ErrRayFailed }
