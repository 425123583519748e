package simulation

// Plot names in the response, in render order.
const (
	PlotRaytrace   = "raytrace"
	PlotDistortion = "distortion"
	PlotRayFan     = "rayfan"
)

// SurfaceSpec is one client-supplied surface. Radius and thickness are
// required; the other fields fall back to the optics defaults when omitted.
type SurfaceSpec struct {
	Radius       *float64  `json:"radius" validate:"required"`
	Thickness    *float64  `json:"thickness" validate:"required"`
	Material     *string   `json:"material,omitempty" validate:"omitempty,min=1"`
	SurfaceType  *string   `json:"surface_type,omitempty" validate:"omitempty,oneof=standard even_asphere odd_asphere"`
	Conic        *float64  `json:"conic,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty" validate:"omitempty,max=16"`
}

// MaxSurfaces caps the number of surfaces in one request.
const MaxSurfaces = 512

// SimulateRequest is the JSON body for POST /simulate. Surface order is the
// order along the optical axis.
type SimulateRequest struct {
	Surfaces []SurfaceSpec `json:"surfaces" validate:"required,max=512,dive"`
}

// SimulateResponse is the JSON response for POST /simulate.
type SimulateResponse struct {
	Plots map[string]string `json:"plots"`
}
