package marker

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-screengaze/pkg/camera"
)

// Adapter binds a raw detector to a camera model and normalizes its
// output: detections are deduplicated by UID, their corners undistorted
// onto the image plane, and reordered into the canonical corner layout.
type Adapter struct {
	model    *camera.Model
	detector RawDetector
}

// NewAdapter constructs an adapter bound to the given camera model for the
// adapter's lifetime. Both the model and the detector are required;
// undistortion without intrinsics would be meaningless.
func NewAdapter(model *camera.Model, detector RawDetector) (*Adapter, error) {
	if model == nil {
		return nil, errors.New("marker: adapter requires a camera model")
	}
	if detector == nil {
		return nil, errors.New("marker: adapter requires a raw detector")
	}
	return &Adapter{model: model, detector: detector}, nil
}

// Detect converts the BGR frame to grayscale and runs DetectGray.
func (a *Adapter) Detect(bgr gocv.Mat) ([]Detection, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return a.DetectGray(gray)
}

// DetectGray runs the external detector on a grayscale image and
// normalizes the raw detections.
//
// If the same UID appears more than once in a frame, exactly one
// detection survives; which one is unspecified (currently the first
// reported). Selecting by confidence would be a behavior change and is
// deliberately not done here.
func (a *Adapter) DetectGray(gray gocv.Mat) ([]Detection, error) {
	raws, err := a.detector.Detect(gray)
	if err != nil {
		return nil, fmt.Errorf("marker: detect: %w", err)
	}
	return a.normalize(raws), nil
}

func (a *Adapter) normalize(raws []RawDetection) []Detection {
	detections := make([]Detection, 0, len(raws))
	seen := make(map[UID]bool, len(raws))
	for _, raw := range raws {
		uid := raw.UID()
		if seen[uid] {
			continue
		}
		seen[uid] = true

		undistorted := a.model.UndistortPointsOnImagePlane(raw.Corners[:])
		corners := make(map[CornerID]camera.Point, 4)
		for i, c := range CornerOrder {
			corners[c] = undistorted[i]
		}
		detections = append(detections, Detection{UID: uid, Corners: corners})
	}
	return detections
}

// Close releases the underlying detector.
func (a *Adapter) Close() error {
	return a.detector.Close()
}
