// Package calibration retrieves factory camera calibrations from Pupil
// Cloud, with a local read-through JSON cache keyed by camera serial.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/teslashibe/go-screengaze/internal/httpc"
	"github.com/teslashibe/go-screengaze/internal/log"
	"github.com/teslashibe/go-screengaze/pkg/camera"
)

// DefaultEndpoint is the calibration API URL template; the single %s is
// the scene-camera serial number.
const DefaultEndpoint = "https://api.cloud.pupil-labs.com/hardware/%s/calibration.v1?json"

// DefaultCacheDir is where fetched calibrations are cached, one JSON
// document per serial.
const DefaultCacheDir = "cache"

// Intrinsics is the calibration document served by the cloud API.
type Intrinsics struct {
	CameraMatrix   [][]float64 `json:"camera_matrix"`
	DistCoefs      [][]float64 `json:"dist_coefs"`
	RotationMatrix [][]float64 `json:"rotation_matrix"`
	SerialNumber   string      `json:"serial_number"`
	Version        string      `json:"version"`
}

func (in *Intrinsics) validate() error {
	if len(in.CameraMatrix) != 3 {
		return fmt.Errorf("camera_matrix has %d rows, want 3", len(in.CameraMatrix))
	}
	for i, row := range in.CameraMatrix {
		if len(row) != 3 {
			return fmt.Errorf("camera_matrix row %d has %d entries, want 3", i, len(row))
		}
	}
	if len(in.DistCoefs) != 1 || len(in.DistCoefs[0]) != 5 {
		return errors.New("dist_coefs must be a 1x5 vector")
	}
	return nil
}

// Client fetches and caches camera calibrations.
type Client struct {
	endpoint string
	cacheDir string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the calibration API URL template.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithCacheDir overrides the cache directory.
func WithCacheDir(dir string) Option {
	return func(c *Client) { c.cacheDir = dir }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a calibration client with production defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		cacheDir: DefaultCacheDir,
		http:     httpc.Client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the calibration for a scene-camera serial number. The
// local cache is checked first; on a miss the document is fetched from
// the cloud API and cached best-effort. A failed cache write is logged
// as a warning and does not fail the retrieval. Fetch errors propagate
// without retry.
func (c *Client) Load(serial string) (*Intrinsics, error) {
	path := filepath.Join(c.cacheDir, fmt.Sprintf("intrinsics.%s.json", serial))

	cached, err := os.ReadFile(path)
	switch {
	case err == nil:
		var in Intrinsics
		if err := json.Unmarshal(cached, &in); err != nil {
			return nil, fmt.Errorf("calibration: decode cached intrinsics %s: %w", path, err)
		}
		if err := in.validate(); err != nil {
			return nil, fmt.Errorf("calibration: invalid cached intrinsics %s: %w", path, err)
		}
		return &in, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("calibration: read cache %s: %w", path, err)
	}

	in, err := c.fetch(serial)
	if err != nil {
		return nil, err
	}

	if err := c.writeCache(path, in); err != nil {
		log.Warn("unable to cache intrinsics", "path", path, "error", err)
	}
	return in, nil
}

func (c *Client) fetch(serial string) (*Intrinsics, error) {
	url := fmt.Sprintf(c.endpoint, serial)
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calibration: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("calibration: fetch %s: unexpected status %s", url, resp.Status)
	}

	var envelope struct {
		Result *Intrinsics `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("calibration: decode response: %w", err)
	}
	if envelope.Result == nil {
		return nil, errors.New("calibration: response has no result")
	}
	if err := envelope.Result.validate(); err != nil {
		return nil, fmt.Errorf("calibration: invalid intrinsics for serial %s: %w", serial, err)
	}
	return envelope.Result, nil
}

func (c *Client) writeCache(path string, in *Intrinsics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CameraForSerial loads the calibration for a serial and builds the scene
// camera model from it.
func (c *Client) CameraForSerial(serial string) (*camera.Model, error) {
	in, err := c.Load(serial)
	if err != nil {
		return nil, err
	}

	var k [3][3]float64
	for i := range k {
		for j := range k[i] {
			k[i][j] = in.CameraMatrix[i][j]
		}
	}
	var d [5]float64
	copy(d[:], in.DistCoefs[0])

	model, err := camera.NewModel(camera.NewIntrinsics("Scene", 1, 1, k, d))
	if err != nil {
		return nil, fmt.Errorf("calibration: serial %s: %w", serial, err)
	}
	return model, nil
}
