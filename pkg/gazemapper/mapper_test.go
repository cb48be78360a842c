package gazemapper

import (
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-screengaze/pkg/camera"
	"github.com/teslashibe/go-screengaze/pkg/marker"
	"github.com/teslashibe/go-screengaze/pkg/surface"
)

const floatTolerance = 1e-9

// stubRawDetector feeds canned raw detections into the pipeline.
type stubRawDetector struct {
	raws        []marker.RawDetection
	detectCalls int
	closed      bool
}

func (s *stubRawDetector) Detect(gocv.Mat) ([]marker.RawDetection, error) {
	s.detectCalls++
	return s.raws, nil
}

func (s *stubRawDetector) Close() error {
	s.closed = true
	return nil
}

// identityLocation maps image-plane points straight through.
type identityLocation struct {
	surfaceID string
}

func (l identityLocation) SurfaceID() string { return l.surfaceID }

func (l identityLocation) MapImagePlaneToSurface(points []camera.Point) []camera.Point {
	out := make([]camera.Point, len(points))
	copy(out, points)
	return out
}

// stubLocator returns the identity location when at least minMatches of
// the surface's registered markers are visible.
type stubLocator struct {
	minMatches int
}

func (l stubLocator) Locate(s *surface.Surface, detections []marker.Detection) surface.Location {
	matches := 0
	for _, d := range detections {
		if _, ok := s.Markers[d.UID]; ok {
			matches++
		}
	}
	if matches < l.minMatches {
		return nil
	}
	return identityLocation{surfaceID: s.ID}
}

func identityIntrinsics() camera.Intrinsics {
	return camera.NewIntrinsics("identity", 1, 1,
		[3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, [5]float64{})
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

// unitSquareLayout registers one marker whose normalized corners are
// exactly the unit square.
func unitSquareLayout() (map[int][4]camera.Point, surface.Size) {
	verts := map[int][4]camera.Point{
		0: {
			{X: 0, Y: 100},   // bottom-left in pixel space
			{X: 100, Y: 100}, // bottom-right
			{X: 100, Y: 0},   // top-right
			{X: 0, Y: 0},     // top-left
		},
	}
	return verts, surface.Size{W: 100, H: 100}
}

func rawMarker(tagID int) marker.RawDetection {
	return marker.RawDetection{
		Family: marker.Family,
		TagID:  tagID,
		Corners: [4]camera.Point{
			{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20},
		},
	}
}

func newTestMapper(t *testing.T, locator surface.Locator, stub *stubRawDetector) *Mapper {
	t.Helper()
	m := New(locator, WithDetectorFactory(func() (marker.RawDetector, error) {
		return stub, nil
	}))
	if err := m.SetCamera(identityIntrinsics()); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMapper_UnconfiguredIsSilentNoOp(t *testing.T) {
	m := New(stubLocator{minMatches: 1})

	result, err := m.ProcessFrame(testFrame(t), Gaze{X: 0.5, Y: 0.5})
	if err != nil {
		t.Fatalf("Unconfigured ProcessFrame returned error: %v", err)
	}
	if result != nil {
		t.Fatalf("Unconfigured ProcessFrame returned a result: %v", result)
	}
	if m.Recent() != nil {
		t.Error("Unconfigured ProcessFrame updated Recent")
	}
}

func TestMapper_EndToEndIdentity(t *testing.T) {
	stub := &stubRawDetector{raws: []marker.RawDetection{rawMarker(0)}}
	m := newTestMapper(t, stubLocator{minMatches: 1}, stub)

	verts, size := unitSquareLayout()
	s, err := m.AddSurface(verts, size, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "Screen" {
		t.Errorf("Default name: got %q, want Screen", s.Name)
	}

	result, err := m.ProcessFrame(testFrame(t), Gaze{X: 0.5, Y: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if result == nil {
		t.Fatal("Expected a frame result")
	}

	if len(result.Markers) != 1 {
		t.Fatalf("Markers: got %d, want 1", len(result.Markers))
	}
	if result.Locations[s.ID] == nil {
		t.Fatal("Surface not located")
	}

	mapped := result.MappedGaze[s.ID]
	if len(mapped) != 1 {
		t.Fatalf("Mapped gaze: got %d entries, want 1", len(mapped))
	}
	g := mapped[0]
	if math.Abs(g.X-0.5) > floatTolerance || math.Abs(g.Y-0.5) > floatTolerance {
		t.Errorf("Mapped point: got (%v,%v), want (0.5,0.5)", g.X, g.Y)
	}
	if !g.OnSurface {
		t.Error("Center gaze classified off-surface")
	}
	if g.SurfaceID != s.ID {
		t.Errorf("SurfaceID: got %q, want %q", g.SurfaceID, s.ID)
	}

	if m.Recent() != result {
		t.Error("Recent does not return the last result")
	}
}

func TestMapper_OnSurfaceBoundaryInclusive(t *testing.T) {
	stub := &stubRawDetector{raws: []marker.RawDetection{rawMarker(0)}}
	m := newTestMapper(t, stubLocator{minMatches: 1}, stub)

	verts, size := unitSquareLayout()
	s, err := m.AddSurface(verts, size, "Screen")
	if err != nil {
		t.Fatal(err)
	}

	// Identity camera and identity location: the normalized point equals
	// the gaze pixel, so boundary cases can be driven directly.
	cases := []struct {
		x, y float64
		want bool
	}{
		{0.0, 0.0, true},
		{1.0, 1.0, true},
		{-0.0001, 0.5, false},
		{0.5, 1.0001, false},
	}

	gazes := make([]Gaze, len(cases))
	for i, tc := range cases {
		gazes[i] = Gaze{X: tc.x, Y: tc.y}
	}

	result, err := m.ProcessFrame(testFrame(t), gazes...)
	if err != nil {
		t.Fatal(err)
	}
	mapped := result.MappedGaze[s.ID]
	if len(mapped) != len(cases) {
		t.Fatalf("Mapped gaze: got %d entries, want %d", len(mapped), len(cases))
	}
	for i, tc := range cases {
		if mapped[i].OnSurface != tc.want {
			t.Errorf("Point (%v,%v): OnSurface = %v, want %v", tc.x, tc.y, mapped[i].OnSurface, tc.want)
		}
	}
}

func TestMapper_UnlocatedSurfaceEmptyNeverAbsent(t *testing.T) {
	// No markers visible at all.
	stub := &stubRawDetector{}
	m := newTestMapper(t, stubLocator{minMatches: 1}, stub)

	verts, size := unitSquareLayout()
	s, err := m.AddSurface(verts, size, "Screen")
	if err != nil {
		t.Fatal(err)
	}

	result, err := m.ProcessFrame(testFrame(t), Gaze{X: 0.5, Y: 0.5})
	if err != nil {
		t.Fatal(err)
	}

	location, present := result.Locations[s.ID]
	if !present {
		t.Fatal("Locations must carry an entry for every registered surface")
	}
	if location != nil {
		t.Fatal("Surface with no visible markers must not be located")
	}

	mapped, present := result.MappedGaze[s.ID]
	if !present {
		t.Fatal("MappedGaze entry absent for unlocated surface; want empty list")
	}
	if mapped == nil || len(mapped) != 0 {
		t.Fatalf("MappedGaze for unlocated surface: got %v, want empty list", mapped)
	}
}

func TestMapper_DetectionAmortizedAcrossSamples(t *testing.T) {
	stub := &stubRawDetector{raws: []marker.RawDetection{rawMarker(0)}}
	m := newTestMapper(t, stubLocator{minMatches: 1}, stub)

	verts, size := unitSquareLayout()
	if _, err := m.AddSurface(verts, size, "Screen"); err != nil {
		t.Fatal(err)
	}

	gazes := []Gaze{{X: 0.1, Y: 0.1}, {X: 0.5, Y: 0.5}, {X: 0.9, Y: 0.9}}
	if _, err := m.ProcessFrame(testFrame(t), gazes...); err != nil {
		t.Fatal(err)
	}

	if stub.detectCalls != 1 {
		t.Errorf("Detector ran %d times for one frame, want 1", stub.detectCalls)
	}
}

func TestMapper_SetCameraRebindsAdapter(t *testing.T) {
	detectors := []*stubRawDetector{}
	m := New(stubLocator{minMatches: 1}, WithDetectorFactory(func() (marker.RawDetector, error) {
		d := &stubRawDetector{raws: []marker.RawDetection{rawMarker(0)}}
		detectors = append(detectors, d)
		return d, nil
	}))

	if err := m.SetCamera(identityIntrinsics()); err != nil {
		t.Fatal(err)
	}

	// Second camera with real distortion so a stale binding would be
	// observable in the undistorted corners.
	distorted := camera.NewIntrinsics("Scene", 1088, 1080,
		[3][3]float64{{766, 0, 544}, {0, 766, 540}, {0, 0, 1}},
		[5]float64{-0.13, 0.11, 0, 0, 0.02})
	if err := m.SetCamera(distorted); err != nil {
		t.Fatal(err)
	}

	if len(detectors) != 2 {
		t.Fatalf("Detector factory ran %d times, want 2", len(detectors))
	}
	if !detectors[0].closed {
		t.Error("First detector not closed on camera replacement")
	}
	if detectors[1].closed {
		t.Error("Active detector was closed")
	}

	result, err := m.ProcessFrame(testFrame(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Markers) != 1 {
		t.Fatalf("Markers: got %d, want 1", len(result.Markers))
	}

	// The detection's corners must match what the second camera's model
	// alone would produce.
	model, err := camera.NewModel(distorted)
	if err != nil {
		t.Fatal(err)
	}
	raw := rawMarker(0)
	want := model.UndistortPointsOnImagePlane(raw.Corners[:])
	got := result.Markers[0].VerticesInOrder(marker.CornerOrder)
	for i := range want {
		if math.Abs(got[i].X-want[i].X) > floatTolerance || math.Abs(got[i].Y-want[i].Y) > floatTolerance {
			t.Errorf("Corner %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMapper_SurfacesSnapshotAndClear(t *testing.T) {
	stub := &stubRawDetector{}
	m := newTestMapper(t, stubLocator{minMatches: 1}, stub)

	verts, size := unitSquareLayout()
	a, err := m.AddSurface(verts, size, "A")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.AddSurface(verts, size, "B")
	if err != nil {
		t.Fatal(err)
	}

	snapshot := m.Surfaces()
	if len(snapshot) != 2 || snapshot[0] != a || snapshot[1] != b {
		t.Fatalf("Surfaces snapshot out of order: %v", snapshot)
	}

	// Mutating the snapshot must not affect the mapper.
	snapshot[0] = nil
	if m.Surfaces()[0] != a {
		t.Error("Snapshot mutation leaked into the mapper")
	}

	m.ClearSurfaces()
	if len(m.Surfaces()) != 0 {
		t.Error("ClearSurfaces left surfaces registered")
	}

	// Previously returned surfaces stay valid value objects.
	if a.Name != "A" || len(a.Markers) != 1 {
		t.Error("Cleared surfaces must remain intact")
	}
}
