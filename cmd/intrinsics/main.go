// Intrinsics fetches a scene camera's factory calibration from Pupil
// Cloud and prints it, caching it locally for later offline use.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/teslashibe/go-screengaze/pkg/calibration"
)

func main() {
	serial := flag.String("serial", "", "scene camera serial number (required)")
	endpoint := flag.String("endpoint", calibration.DefaultEndpoint, "calibration API URL template")
	cacheDir := flag.String("cache", calibration.DefaultCacheDir, "local cache directory")
	flag.Parse()

	if *serial == "" {
		fmt.Fprintln(os.Stderr, "Error: -serial is required")
		flag.Usage()
		os.Exit(1)
	}

	client := calibration.NewClient(
		calibration.WithEndpoint(*endpoint),
		calibration.WithCacheDir(*cacheDir),
	)

	in, err := client.Load(*serial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pretty, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(pretty))
}
