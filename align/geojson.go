package align

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// PlanView projects the columns of a 3xN matrix onto the XY plane, in column
// order.
func PlanView(points mat.Matrix) orb.LineString {
	_, n := matrixDims(points)
	ls := make(orb.LineString, n)
	for j := 0; j < n; j++ {
		ls[j] = orb.Point{points.At(0, j), points.At(1, j)}
	}
	return ls
}

// TrajectoryGeoJSON exports the aligned source centers and the destination
// centers of a unit as plan-view GeoJSON line strings. Coordinates are the
// destination frame's x and y.
func TrajectoryGeoJSON(res UnitResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if !res.OK() {
		return fc
	}

	layers := []struct {
		role   string
		points *mat.Dense
	}{
		{"aligned", res.Aligned},
		{"destination", res.Correspondences.Dest},
	}
	for _, l := range layers {
		ls := PlanView(l.points)
		if len(ls) == 0 {
			continue
		}
		f := geojson.NewFeature(ls)
		f.Properties["unit"] = res.Unit
		f.Properties["pass"] = string(res.Pass)
		f.Properties["role"] = l.role
		f.Properties["frames"] = len(ls)
		f.Properties["pathLength"] = planar.Length(ls)
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"scale":    res.Transform.S,
		"residual": res.Residual,
	}
	return fc
}

// SaveGeoJSON writes the trajectory export of a unit to path.
func SaveGeoJSON(path string, res UnitResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating GeoJSON directory: %w", err)
	}
	data, err := TrajectoryGeoJSON(res).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing GeoJSON: %w", err)
	}
	return nil
}
