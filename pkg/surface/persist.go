package surface

import (
	"fmt"

	"github.com/teslashibe/go-screengaze/pkg/marker"
)

// AsMap serializes a registered marker for persistence. The corner
// positions are written in the canonical corner order.
func (m RegisteredMarker) AsMap() map[string]any {
	verts := make([][2]float64, len(marker.CornerOrder))
	for i, c := range marker.CornerOrder {
		verts[i] = m.Corners[c]
	}
	return map[string]any{
		"uid":      string(m.UID),
		"space":    m.Space,
		"verts_uv": verts,
	}
}

// MarkerFromMap rehydrates a registered marker. Missing or malformed
// fields produce a validation error wrapping the underlying cause.
func MarkerFromMap(value map[string]any) (RegisteredMarker, error) {
	m, err := markerFromMap(value)
	if err != nil {
		return RegisteredMarker{}, fmt.Errorf("surface: invalid marker record: %w", err)
	}
	return m, nil
}

func markerFromMap(value map[string]any) (RegisteredMarker, error) {
	uid, ok := value["uid"].(string)
	if !ok || uid == "" {
		return RegisteredMarker{}, fmt.Errorf("missing uid")
	}

	rawVerts, ok := value["verts_uv"]
	if !ok {
		return RegisteredMarker{}, fmt.Errorf("missing verts_uv")
	}
	verts, err := toVertices(rawVerts)
	if err != nil {
		return RegisteredMarker{}, err
	}
	if len(verts) != len(marker.CornerOrder) {
		return RegisteredMarker{}, fmt.Errorf("verts_uv has %d entries, want %d", len(verts), len(marker.CornerOrder))
	}

	corners := make(map[marker.CornerID][2]float64, len(verts))
	for i, c := range marker.CornerOrder {
		corners[c] = verts[i]
	}
	return RegisteredMarker{
		UID:     marker.UID(uid),
		Space:   SpaceSurfaceUndistorted,
		Corners: corners,
	}, nil
}

// toVertices accepts either the in-memory [][2]float64 form or the
// []any form that comes back from a JSON decode.
func toVertices(raw any) ([][2]float64, error) {
	switch v := raw.(type) {
	case [][2]float64:
		return v, nil
	case []any:
		verts := make([][2]float64, len(v))
		for i, entry := range v {
			pair, ok := entry.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("verts_uv entry %d is not a 2-element point", i)
			}
			for j, coord := range pair {
				f, ok := coord.(float64)
				if !ok {
					return nil, fmt.Errorf("verts_uv entry %d has a non-numeric coordinate", i)
				}
				verts[i][j] = f
			}
		}
		return verts, nil
	default:
		return nil, fmt.Errorf("verts_uv has unsupported type %T", raw)
	}
}
