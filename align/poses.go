package align

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// LoadPoseCollection reads a pose collection from a JSON file of the form
// {"<unit>": {"<frame>": [[r00, r01, r02, t0], [...], [...]]}}. A fourth
// homogeneous row is accepted and dropped.
func LoadPoseCollection(path string) (PoseCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pose file: %w", err)
	}
	return ParsePoseCollection(data)
}

// ParsePoseCollection parses pose collection JSON data.
func ParsePoseCollection(data []byte) (PoseCollection, error) {
	var raw map[string]map[string][][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	out := make(PoseCollection, len(raw))
	for unit, frames := range raw {
		pm := make(PoseMap, len(frames))
		for frame, rows := range frames {
			e, err := extrinsicFromRows(rows)
			if err != nil {
				return nil, fmt.Errorf("unit %s frame %s: %w", unit, frame, err)
			}
			pm[frame] = e
		}
		out[unit] = pm
	}
	return out, nil
}

func extrinsicFromRows(rows [][]float64) (Extrinsic, error) {
	if len(rows) != 3 && len(rows) != 4 {
		return Extrinsic{}, shapeErrorf("extrinsic must have 3 or 4 rows, got %d", len(rows))
	}
	data := make([]float64, 0, 4*len(rows))
	for i, row := range rows {
		if len(row) != 4 {
			return Extrinsic{}, shapeErrorf("extrinsic row %d has %d columns, want 4", i, len(row))
		}
		data = append(data, row...)
	}
	return ExtrinsicFromDense(mat.NewDense(len(rows), 4, data))
}

// SavePoseMap writes a PoseMap in the same row layout LoadPoseCollection
// reads for a single unit.
func SavePoseMap(path string, poses PoseMap) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating pose directory: %w", err)
	}
	data, err := json.MarshalIndent(poses, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling poses: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing pose file: %w", err)
	}
	return nil
}

// AlignedPoseMap names the aligned poses of a clip with namer, fallback
// frames included.
func (ca ClipAlignment) AlignedPoseMap(namer FrameNamer) PoseMap {
	pm := make(PoseMap, len(ca.Poses))
	for i, e := range ca.Poses {
		pm[namer(ca.Clip, i)] = e
	}
	return pm
}
