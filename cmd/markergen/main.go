// Markergen renders AprilTag 36h11 marker images for building surfaces.
package main

import (
	"flag"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-screengaze/pkg/marker"
)

func main() {
	tagID := flag.Int("id", 0, "tag id to render")
	side := flag.Int("size", 512, "marker side length in pixels")
	flipX := flag.Bool("flip-x", false, "mirror horizontally")
	flipY := flag.Bool("flip-y", false, "mirror vertically")
	out := flag.String("out", "", "output image path (default marker_<id>.png)")
	flag.Parse()

	path := *out
	if path == "" {
		path = fmt.Sprintf("marker_%d.png", *tagID)
	}

	img, err := marker.GenerateMarker(*tagID, *side, *flipX, *flipY)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer img.Close()

	if ok := gocv.IMWrite(path, img); !ok {
		fmt.Fprintf(os.Stderr, "Error: could not write %s\n", path)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%dx%d, tag %d)\n", path, *side, *side, *tagID)
}
