// Package gazemapper maps eye-tracker gaze samples onto fiducial-marker
// registered planar surfaces, one frame at a time.
package gazemapper

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-screengaze/pkg/camera"
	"github.com/teslashibe/go-screengaze/pkg/marker"
	"github.com/teslashibe/go-screengaze/pkg/surface"
)

// DetectorFactory builds the raw detector bound to each new camera.
type DetectorFactory func() (marker.RawDetector, error)

// Mapper orchestrates one camera model, one marker adapter, and a
// collection of surfaces into a per-frame gaze mapping pipeline.
//
// A Mapper is not safe for concurrent use: SetCamera, AddSurface,
// ClearSurfaces and ProcessFrame share the camera/adapter pair and the
// surface collection without internal locking. Callers needing
// concurrency must serialize externally or use one Mapper per worker.
type Mapper struct {
	locator surface.Locator
	factory DetectorFactory

	model    *camera.Model
	adapter  *marker.Adapter
	surfaces []*surface.Surface
	recent   *FrameResult
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithDetectorFactory overrides the detector built on each SetCamera.
// The default builds an AprilTag 36h11 aruco detector.
func WithDetectorFactory(f DetectorFactory) Option {
	return func(m *Mapper) { m.factory = f }
}

// New creates a mapper that localizes surfaces through the given locator.
// The mapper is unconfigured until SetCamera is called.
func New(locator surface.Locator, opts ...Option) *Mapper {
	m := &Mapper{
		locator: locator,
		factory: func() (marker.RawDetector, error) {
			return marker.NewArucoDetector(marker.DefaultConfig()), nil
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCamera replaces the camera model and rebuilds the marker adapter
// bound to it. The two are swapped together: no other operation can
// observe an adapter bound to a stale camera. Building a detector is
// comparatively expensive; do not call this per frame.
func (m *Mapper) SetCamera(intr camera.Intrinsics) error {
	model, err := camera.NewModel(intr)
	if err != nil {
		return fmt.Errorf("gazemapper: set camera: %w", err)
	}
	detector, err := m.factory()
	if err != nil {
		return fmt.Errorf("gazemapper: build detector: %w", err)
	}
	adapter, err := marker.NewAdapter(model, detector)
	if err != nil {
		detector.Close()
		return fmt.Errorf("gazemapper: build adapter: %w", err)
	}

	if m.adapter != nil {
		m.adapter.Close()
	}
	m.model = model
	m.adapter = adapter
	return nil
}

// Camera returns the active camera model, or nil when unconfigured.
func (m *Mapper) Camera() *camera.Model {
	return m.model
}

// AddSurface registers a surface built from the pixel layout of its
// markers (see surface.New). An empty name defaults to "Screen".
func (m *Mapper) AddSurface(markerVerts map[int][4]camera.Point, size surface.Size, name string) (*surface.Surface, error) {
	if name == "" {
		name = "Screen"
	}
	s, err := surface.New(markerVerts, size, name)
	if err != nil {
		return nil, fmt.Errorf("gazemapper: add surface: %w", err)
	}
	m.surfaces = append(m.surfaces, s)
	return s, nil
}

// ClearSurfaces empties the surface collection. Previously returned
// surfaces stay valid; the mapper just stops considering them.
func (m *Mapper) ClearSurfaces() {
	m.surfaces = nil
}

// Surfaces returns an ordered snapshot of the registered surfaces.
func (m *Mapper) Surfaces() []*surface.Surface {
	out := make([]*surface.Surface, len(m.surfaces))
	copy(out, m.surfaces)
	return out
}

// Recent returns the last computed frame result, or nil.
func (m *Mapper) Recent() *FrameResult {
	return m.recent
}

// ProcessFrame detects markers in the frame, locates every registered
// surface, and maps each gaze sample into every located surface's
// normalized space. Detection and localization run once per frame and are
// shared across all gaze samples.
//
// When no camera has been set the call is a silent no-op returning
// (nil, nil); callers that need to distinguish "not configured" from
// "nothing to report" should check Camera() first.
func (m *Mapper) ProcessFrame(frame gocv.Mat, gazes ...Gaze) (*FrameResult, error) {
	if m.model == nil || m.adapter == nil {
		return nil, nil
	}

	markers, err := m.adapter.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("gazemapper: process frame: %w", err)
	}

	locations := make(map[string]surface.Location, len(m.surfaces))
	for _, s := range m.surfaces {
		locations[s.ID] = m.locator.Locate(s, markers)
	}

	points := make([]camera.Point, len(gazes))
	for i, g := range gazes {
		points[i] = camera.Point{X: g.X, Y: g.Y}
	}
	undistorted := m.model.UndistortPointsOnImagePlane(points)

	mapped := make(map[string][]MappedGaze, len(m.surfaces))
	for _, s := range m.surfaces {
		location := locations[s.ID]
		if location == nil {
			mapped[s.ID] = []MappedGaze{}
			continue
		}

		norms := location.MapImagePlaneToSurface(undistorted)
		onSurface := make([]MappedGaze, len(norms))
		for i, norm := range norms {
			onSurface[i] = mappedGaze(s.ID, norm, gazes[i])
		}
		mapped[s.ID] = onSurface
	}

	result := &FrameResult{
		Markers:    markers,
		Locations:  locations,
		MappedGaze: mapped,
	}
	m.recent = result
	return result, nil
}
