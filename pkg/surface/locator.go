package surface

import (
	"github.com/teslashibe/go-screengaze/pkg/camera"
	"github.com/teslashibe/go-screengaze/pkg/marker"
)

// Location is a per-frame transform from undistorted image-plane space
// into a surface's normalized space. It is ephemeral: valid only for the
// frame it was computed from.
type Location interface {
	// SurfaceID identifies the surface this location belongs to.
	SurfaceID() string

	// MapImagePlaneToSurface maps undistorted image-plane points into
	// the surface's normalized [0,1]x[0,1] space. Points outside the
	// surface map outside the unit square.
	MapImagePlaneToSurface(points []camera.Point) []camera.Point
}

// Locator matches a surface's registered markers against the current
// frame's detections and computes a Location. Implementations live outside
// this module; they decide the minimum number of marker correspondences
// required and return nil when matching is insufficient. A nil Location is
// an expected per-frame outcome, not an error.
type Locator interface {
	Locate(s *Surface, detections []marker.Detection) Location
}
