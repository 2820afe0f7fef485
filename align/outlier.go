package align

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// OutlierParams configures statistical outlier removal.
type OutlierParams struct {
	K        int     `yaml:"k" json:"k"`
	StdRatio float64 `yaml:"stdRatio" json:"stdRatio"`
}

// Defaults used by the reference pipeline for each pass.
var (
	DefaultClipOutlierParams = OutlierParams{K: 15, StdRatio: 3}
	DefaultScanOutlierParams = OutlierParams{K: 5, StdRatio: 4}
)

// filterTolerance absorbs rounding in the mean so points sitting exactly on
// the threshold are kept.
const filterTolerance = 1e-12

// FilterOutliers drops frames whose camera center is far from its neighbours.
// For each center it takes the mean distance to its k nearest other centers,
// then keeps centers whose mean distance is <= μ + stdRatio·σ over all
// centers. With fewer than k+1 centers every frame is kept. Frames whose
// center cannot be computed are dropped.
func FilterOutliers(poses PoseMap, k int, stdRatio float64) PoseMap {
	ids := make([]string, 0, len(poses))
	centers := make([]r3.Vec, 0, len(poses))
	for _, id := range poses.Keys() {
		c, err := CameraCenter(poses[id])
		if err != nil {
			Logf("outlier filter: dropping %s: %v", id, err)
			continue
		}
		ids = append(ids, id)
		centers = append(centers, c)
	}

	out := make(PoseMap, len(ids))
	if k < 1 || len(centers) < k+1 {
		for _, id := range ids {
			out[id] = poses[id]
		}
		return out
	}

	meanDist := neighbourDistances(centers, k)
	mu, sigma := stat.MeanStdDev(meanDist, nil)
	threshold := mu + stdRatio*sigma
	threshold += filterTolerance * math.Max(1, math.Abs(threshold))

	for i, id := range ids {
		if meanDist[i] <= threshold {
			out[id] = poses[id]
		}
	}
	return out
}

// neighbourDistances returns, per center, the mean Euclidean distance to its
// k nearest other centers. len(centers) must exceed k.
func neighbourDistances(centers []r3.Vec, k int) []float64 {
	pts := make(kdtree.Points, len(centers))
	for i, c := range centers {
		pts[i] = kdtree.Point{c.X, c.Y, c.Z}
	}
	tree := kdtree.New(pts, false)

	means := make([]float64, len(centers))
	dists := make([]float64, 0, k+1)
	for i, c := range centers {
		keeper := kdtree.NewNKeeper(k + 1)
		tree.NearestSet(keeper, kdtree.Point{c.X, c.Y, c.Z})

		dists = dists[:0]
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil {
				continue
			}
			// kdtree.Point distances are squared.
			dists = append(dists, math.Sqrt(cd.Dist))
		}
		sort.Float64s(dists)
		// The nearest hit is the query center itself.
		if len(dists) > 1 {
			means[i] = stat.Mean(dists[1:], nil)
		}
	}
	return means
}
