package marker

import (
	"fmt"

	"gocv.io/x/gocv"
)

// GenerateMarker renders an AprilTag 36h11 marker image with the given
// side length in pixels. Markers placed behind a mirrored display (or
// printed face-down on transparency) need flipping to stay detectable;
// flipX mirrors horizontally, flipY vertically.
//
// The caller owns the returned Mat and must Close it.
func GenerateMarker(tagID, sidePixels int, flipX, flipY bool) (gocv.Mat, error) {
	if tagID < 0 {
		return gocv.Mat{}, fmt.Errorf("marker: invalid tag id %d", tagID)
	}
	if sidePixels <= 0 {
		return gocv.Mat{}, fmt.Errorf("marker: invalid side length %d", sidePixels)
	}

	img := gocv.NewMat()
	if err := gocv.ArucoGenerateImageMarker(gocv.ArucoDictAprilTag_36h11, tagID, sidePixels, img, 1); err != nil {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("marker: generate tag %d: %w", tagID, err)
	}

	flipCode, flip := flipAxesToCode(flipX, flipY)
	if flip {
		flipped := gocv.NewMat()
		gocv.Flip(img, &flipped, flipCode)
		img.Close()
		return flipped, nil
	}
	return img, nil
}

// flipAxesToCode translates flip axes into an OpenCV flip code:
// 0 flips around the x-axis (vertical flip), 1 around the y-axis
// (horizontal flip), -1 around both.
func flipAxesToCode(flipX, flipY bool) (int, bool) {
	switch {
	case flipX && flipY:
		return -1, true
	case flipX:
		return 1, true
	case flipY:
		return 0, true
	default:
		return 0, false
	}
}
