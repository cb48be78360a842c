// Package marker turns raw fiducial detections into canonical,
// undistorted, uniquely-identified marker records.
package marker

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-screengaze/pkg/camera"
)

// CornerID labels one of a marker's four corners.
type CornerID int

const (
	TopLeft CornerID = iota
	TopRight
	BottomRight
	BottomLeft
)

// CornerOrder is the canonical corner enumeration: start at the top-left
// corner and proceed clockwise.
var CornerOrder = []CornerID{TopLeft, TopRight, BottomRight, BottomLeft}

func (c CornerID) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomRight:
		return "bottom-right"
	case BottomLeft:
		return "bottom-left"
	default:
		return fmt.Sprintf("corner(%d)", int(c))
	}
}

// UID uniquely identifies one physical fiducial pattern. Two detections
// with the same family and id in one frame are the same logical marker.
type UID string

// NewUID builds the deterministic "<family>:<id>" marker key.
func NewUID(family string, tagID int) UID {
	return UID(fmt.Sprintf("%s:%d", family, tagID))
}

// RawDetection is one detection as reported by the external detector.
// Corners are raw (distorted) pixel coordinates in the detector-native
// order: top-left, top-right, bottom-right, bottom-left, clockwise.
type RawDetection struct {
	Family     string
	TagID      int
	Corners    [4]camera.Point
	Confidence float64
}

// UID returns the detection's marker key.
func (d RawDetection) UID() UID {
	return NewUID(d.Family, d.TagID)
}

// RawDetector is the black-box fiducial detector contract. Implementations
// receive a single-channel grayscale image.
type RawDetector interface {
	Detect(gray gocv.Mat) ([]RawDetection, error)
	Close() error
}

// Detection is a canonical per-frame marker record: four corner points in
// undistorted image-plane coordinates, keyed by corner. Produced fresh
// every frame and never persisted.
type Detection struct {
	UID     UID
	Corners map[CornerID]camera.Point
}

// VerticesInOrder returns the corner points in the requested order.
func (d Detection) VerticesInOrder(order []CornerID) []camera.Point {
	points := make([]camera.Point, len(order))
	for i, c := range order {
		points[i] = d.Corners[c]
	}
	return points
}
