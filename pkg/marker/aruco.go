package marker

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-screengaze/pkg/camera"
)

// Family is the fiducial family this module works with.
const Family = "tag36h11"

// The predefined AprilTag dictionary is built on first use, not at import
// time, so programs that never detect pay nothing for it.
var (
	dictOnce sync.Once
	dict     gocv.ArucoDictionary
)

func aprilTagDictionary() gocv.ArucoDictionary {
	dictOnce.Do(func() {
		dict = gocv.GetPredefinedDictionary(gocv.ArucoDictAprilTag_36h11)
	})
	return dict
}

// Config holds AprilTag detector configuration.
type Config struct {
	// MinMarkerPerimeter rejects candidate quads smaller than this
	// fraction of the image's larger dimension.
	MinMarkerPerimeter float64
}

// DefaultConfig returns production defaults for scene-camera footage.
func DefaultConfig() Config {
	return Config{
		MinMarkerPerimeter: 0.03,
	}
}

// ArucoDetector detects AprilTag 36h11 markers using OpenCV's aruco
// module. It satisfies RawDetector.
type ArucoDetector struct {
	detector gocv.ArucoDetector
	mu       sync.Mutex // protects detection
}

// NewArucoDetector creates an AprilTag detector with the given config.
func NewArucoDetector(cfg Config) *ArucoDetector {
	params := gocv.NewArucoDetectorParameters()
	if cfg.MinMarkerPerimeter > 0 {
		params.SetMinMarkerPerimeterRate(cfg.MinMarkerPerimeter)
	}
	return &ArucoDetector{
		detector: gocv.NewArucoDetectorWithParams(aprilTagDictionary(), params),
	}
}

// Detect finds AprilTag markers in the grayscale image. Corners come back
// in the detector-native order top-left, top-right, bottom-right,
// bottom-left. OpenCV reports no per-marker confidence, so Confidence is
// left at zero.
func (d *ArucoDetector) Detect(gray gocv.Mat) ([]RawDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	corners, ids, _ := d.detector.DetectMarkers(gray)

	raws := make([]RawDetection, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		var quad [4]camera.Point
		for j, c := range corners[i] {
			quad[j] = camera.Point{X: float64(c.X), Y: float64(c.Y)}
		}
		raws = append(raws, RawDetection{
			Family:  Family,
			TagID:   id,
			Corners: quad,
		})
	}
	return raws, nil
}

// Close releases the native detector.
func (d *ArucoDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detector.Close()
}
