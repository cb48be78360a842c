// Package surface defines planar gaze surfaces registered via known
// fiducial marker layouts, and the contract for locating them per frame.
package surface

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/teslashibe/go-screengaze/pkg/camera"
	"github.com/teslashibe/go-screengaze/pkg/marker"
)

// SpaceSurfaceUndistorted tags marker layouts expressed in the surface's
// normalized, undistorted coordinate space.
const SpaceSurfaceUndistorted = "surface-undistorted"

// Orientation is the surface rotation in quarter turns; 0 is upright.
type Orientation int

// RegisteredMarker is a marker registered on a surface: each corner has a
// known normalized position in the surface's [0,1]x[0,1] space, origin
// bottom-left.
type RegisteredMarker struct {
	UID     marker.UID
	Space   string
	Corners map[marker.CornerID][2]float64
}

// Size is a surface's pixel extent, used only to normalize layouts.
type Size struct {
	W, H float64
}

// Surface is a logical planar region (e.g. a screen) described by a set of
// registered markers. Surfaces are immutable after construction; the ID is
// generated once and stable for the object's lifetime.
type Surface struct {
	ID          string
	Name        string
	Markers     map[marker.UID]RegisteredMarker
	Orientation Orientation
}

// New builds a surface from the pixel layout of its markers: for each tag
// id, the four pixel vertices of the marker on the surface, in the order
// bottom-left, bottom-right, top-right, top-left.
//
// Vertices are normalized by the surface pixel size and the vertical axis
// is flipped, converting the image convention (origin top-left, y down)
// into the surface convention (origin bottom-left, y up).
func New(markerVerts map[int][4]camera.Point, size Size, name string) (*Surface, error) {
	if size.W <= 0 || size.H <= 0 {
		return nil, fmt.Errorf("surface: invalid pixel size %gx%g", size.W, size.H)
	}
	if len(markerVerts) == 0 {
		return nil, errors.New("surface: at least one marker is required")
	}

	markers := make(map[marker.UID]RegisteredMarker, len(markerVerts))
	for tagID, verts := range markerVerts {
		norm := [4][2]float64{}
		for i, v := range verts {
			norm[i] = [2]float64{v.X / size.W, 1 - v.Y/size.H}
		}

		uid := marker.NewUID(marker.Family, tagID)
		markers[uid] = RegisteredMarker{
			UID:   uid,
			Space: SpaceSurfaceUndistorted,
			Corners: map[marker.CornerID][2]float64{
				marker.BottomLeft:  norm[0],
				marker.BottomRight: norm[1],
				marker.TopRight:    norm[2],
				marker.TopLeft:     norm[3],
			},
		}
	}

	return &Surface{
		ID:      uuid.NewString(),
		Name:    name,
		Markers: markers,
	}, nil
}

// VerticesInOrder returns a registered marker's normalized corners in the
// requested order.
func (m RegisteredMarker) VerticesInOrder(order []marker.CornerID) [][2]float64 {
	points := make([][2]float64, len(order))
	for i, c := range order {
		points[i] = m.Corners[c]
	}
	return points
}
