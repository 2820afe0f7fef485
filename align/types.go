package align

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Extrinsic is a 3x4 camera pose [R | t]. The implicit bottom row [0 0 0 1]
// completes it to a 4x4 homogeneous matrix. R is not assumed orthonormal.
type Extrinsic [3][4]float64

// Rotation returns the 3x3 linear block of the extrinsic.
func (e Extrinsic) Rotation() *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, e[i][j])
		}
	}
	return r
}

// Translation returns the last column of the extrinsic.
func (e Extrinsic) Translation() r3.Vec {
	return r3.Vec{X: e[0][3], Y: e[1][3], Z: e[2][3]}
}

// Homogeneous returns the 4x4 form of the extrinsic.
func (e Extrinsic) Homogeneous() *mat.Dense {
	h := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			h.Set(i, j, e[i][j])
		}
	}
	h.Set(3, 3, 1)
	return h
}

// ExtrinsicFromDense reads the top three rows of a 3x4 or 4x4 matrix.
func ExtrinsicFromDense(m mat.Matrix) (Extrinsic, error) {
	var e Extrinsic
	r, c := m.Dims()
	if c != 4 || (r != 3 && r != 4) {
		return e, shapeErrorf("extrinsic must be 3x4 or 4x4, got %dx%d", r, c)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			e[i][j] = m.At(i, j)
		}
	}
	return e, nil
}

// PoseMap maps a frame identifier to its extrinsic for one unit and one
// estimation method.
type PoseMap map[string]Extrinsic

// Keys returns the frame identifiers in lexicographic order.
func (p PoseMap) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PoseCollection maps a clip or scan identifier to its PoseMap.
type PoseCollection map[string]PoseMap

// Units returns the unit identifiers in lexicographic order.
func (c PoseCollection) Units() []string {
	units := make([]string, 0, len(c))
	for u := range c {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// CorrespondenceSet holds the frame identifiers present in both pose maps and
// the matching camera centers as 3xN column matrices in identifier order.
// Source and Dest are nil when no identifier matched.
type CorrespondenceSet struct {
	IDs    []string
	Source *mat.Dense
	Dest   *mat.Dense
}

// Len returns the number of correspondences.
func (c CorrespondenceSet) Len() int {
	return len(c.IDs)
}

// ValidityRecord has one entry per frame index of a clip, true when the frame
// received a usable aligned pose.
type ValidityRecord []bool

// Count returns the number of valid frames.
func (v ValidityRecord) Count() int {
	n := 0
	for _, ok := range v {
		if ok {
			n++
		}
	}
	return n
}

// Any reports whether at least one frame is valid.
func (v ValidityRecord) Any() bool {
	for _, ok := range v {
		if ok {
			return true
		}
	}
	return false
}

// Pass identifies which of the two alignment passes produced a result.
type Pass string

const (
	PassClip Pass = "clip"
	PassScan Pass = "scan"
)

// vecsToMatrix packs centers as columns of a 3xN matrix. len(vs) must be > 0.
func vecsToMatrix(vs []r3.Vec) *mat.Dense {
	m := mat.NewDense(3, len(vs), nil)
	for j, v := range vs {
		m.Set(0, j, v.X)
		m.Set(1, j, v.Y)
		m.Set(2, j, v.Z)
	}
	return m
}

// column returns column j of a 3xN matrix as a vector.
func column(m mat.Matrix, j int) r3.Vec {
	return r3.Vec{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

// matrixDims returns the dimensions of m, treating a nil matrix as 0x0.
func matrixDims(m mat.Matrix) (int, int) {
	if m == nil {
		return 0, 0
	}
	if d, ok := m.(*mat.Dense); ok && (d == nil || d.IsEmpty()) {
		return 0, 0
	}
	return m.Dims()
}
