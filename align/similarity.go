package align

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SimilarityTransform maps a point p to R·(S·p) + T. R is a proper rotation
// by construction.
type SimilarityTransform struct {
	R *mat.Dense
	T r3.Vec
	S float64
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() SimilarityTransform {
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		r.Set(i, i, 1)
	}
	return SimilarityTransform{R: r, S: 1}
}

// Homogeneous returns the 4x4 matrix T·R·S.
func (t SimilarityTransform) Homogeneous() *mat.Dense {
	h := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h.Set(i, j, t.S*t.R.At(i, j))
		}
	}
	h.Set(0, 3, t.T.X)
	h.Set(1, 3, t.T.Y)
	h.Set(2, 3, t.T.Z)
	h.Set(3, 3, 1)
	return h
}

// Apply transforms a single point.
func (t SimilarityTransform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(rotate(t.R, r3.Scale(t.S, p)), t.T)
}

// TransformPoints applies the transform to every column of a 3xN matrix.
func (t SimilarityTransform) TransformPoints(points mat.Matrix) *mat.Dense {
	_, n := matrixDims(points)
	if n == 0 {
		return nil
	}
	out := mat.NewDense(3, n, nil)
	for j := 0; j < n; j++ {
		q := t.Apply(column(points, j))
		out.Set(0, j, q.X)
		out.Set(1, j, q.Y)
		out.Set(2, j, q.Z)
	}
	return out
}

// Inverse returns the transform mapping R·(S·p) + T back to p.
func (t SimilarityTransform) Inverse() (SimilarityTransform, error) {
	if !(t.S > 0) || math.IsInf(t.S, 0) || t.R == nil {
		return SimilarityTransform{}, ErrSingularTransform
	}
	var rt mat.Dense
	rt.CloneFrom(t.R.T())
	inv := SimilarityTransform{R: &rt, S: 1 / t.S}
	inv.T = r3.Scale(-inv.S, rotate(&rt, t.T))
	return inv, nil
}

// RMS returns the root-mean-square distance between the transformed source
// columns and the destination columns.
func (t SimilarityTransform) RMS(source, dest mat.Matrix) float64 {
	_, n := matrixDims(source)
	if _, m := matrixDims(dest); n == 0 || m != n {
		return math.NaN()
	}
	var sum float64
	for j := 0; j < n; j++ {
		d := r3.Sub(t.Apply(column(source, j)), column(dest, j))
		sum += r3.Dot(d, d)
	}
	return math.Sqrt(sum / float64(n))
}

func (t SimilarityTransform) String() string {
	return fmt.Sprintf("scale=%.6f translation=(%.4f, %.4f, %.4f)", t.S, t.T.X, t.T.Y, t.T.Z)
}

type transformJSON struct {
	Rotation    [3][3]float64 `json:"rotation"`
	Translation [3]float64    `json:"translation"`
	Scale       float64       `json:"scale"`
}

// MarshalJSON encodes the transform as rotation rows, translation and scale.
func (t SimilarityTransform) MarshalJSON() ([]byte, error) {
	var out transformJSON
	if t.R != nil {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				out.Rotation[i][j] = t.R.At(i, j)
			}
		}
	}
	out.Translation = [3]float64{t.T.X, t.T.Y, t.T.Z}
	out.Scale = t.S
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *SimilarityTransform) UnmarshalJSON(data []byte) error {
	var in transformJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, in.Rotation[i][j])
		}
	}
	t.R = r
	t.T = r3.Vec{X: in.Translation[0], Y: in.Translation[1], Z: in.Translation[2]}
	t.S = in.Scale
	return nil
}

// rotate multiplies a 3x3 matrix by a vector.
func rotate(r mat.Matrix, p r3.Vec) r3.Vec {
	return r3.Vec{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z,
	}
}
