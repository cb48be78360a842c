package gazemapper

import (
	"github.com/teslashibe/go-screengaze/pkg/camera"
	"github.com/teslashibe/go-screengaze/pkg/marker"
	"github.com/teslashibe/go-screengaze/pkg/surface"
)

// Gaze is one eye-tracker gaze sample in raw scene-camera pixels.
type Gaze struct {
	X, Y                 float64
	Worn                 bool
	TimestampUnixSeconds float64
}

// MappedGaze is a gaze sample mapped into one surface's normalized space.
// Value type, recomputed every frame.
type MappedGaze struct {
	SurfaceID string
	X, Y      float64
	OnSurface bool
	Base      Gaze
}

// mappedGaze classifies the normalized point with an inclusive boundary
// test: exactly (0,0) and (1,1) count as on-surface.
func mappedGaze(surfaceID string, norm camera.Point, base Gaze) MappedGaze {
	onSurface := 0 <= norm.X && norm.X <= 1 && 0 <= norm.Y && norm.Y <= 1
	return MappedGaze{
		SurfaceID: surfaceID,
		X:         norm.X,
		Y:         norm.Y,
		OnSurface: onSurface,
		Base:      base,
	}
}

// FrameResult aggregates everything computed from one frame.
//
// Locations holds an entry per registered surface; the entry is nil when
// the surface could not be located. MappedGaze likewise holds an entry per
// registered surface, and the entry for an unlocated surface is an empty
// list, never absent.
type FrameResult struct {
	Markers    []marker.Detection
	Locations  map[string]surface.Location
	MappedGaze map[string][]MappedGaze
}
