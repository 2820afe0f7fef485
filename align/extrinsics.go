package align

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// FallbackDepth is the z translation of the fallback pose.
const FallbackDepth = 100.0

// ApplyToExtrinsic re-expresses an extrinsic in the destination frame of tr:
// M = E·T⁻¹, divided by the mean column norm of M's 3x3 block so residual
// scale drift is removed.
func ApplyToExtrinsic(e Extrinsic, tr SimilarityTransform) (Extrinsic, error) {
	if tr.R == nil {
		return Extrinsic{}, errors.Wrap(ErrSingularTransform, "transform has no rotation")
	}
	// det(T) is s³, so the scale itself decides invertibility.
	if !(tr.S > 0) || math.IsInf(tr.S, 0) {
		return Extrinsic{}, errors.Wrapf(ErrSingularTransform, "scale %g", tr.S)
	}
	h := tr.Homogeneous()
	var inv mat.Dense
	if err := inv.Inverse(h); err != nil {
		return Extrinsic{}, errors.Wrap(ErrSingularTransform, err.Error())
	}

	var m mat.Dense
	m.Mul(e.Homogeneous(), &inv)

	var norm float64
	for j := 0; j < 3; j++ {
		norm += mat.Norm(m.Slice(0, 3, j, j+1), 2)
	}
	norm /= 3
	if !(norm > 0) || math.IsInf(norm, 0) {
		return Extrinsic{}, errors.Wrap(ErrSingularRotation, "aligned rotation block vanished")
	}

	var out Extrinsic
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = m.At(i, j) / norm
		}
	}
	return out, nil
}

// FallbackPose is the placeholder given to frames without a source pose:
// identity rotation, translation (0, 0, FallbackDepth). It always pairs with
// a false validity entry.
func FallbackPose() Extrinsic {
	return Extrinsic{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, FallbackDepth},
	}
}

// IsFallback reports whether e is exactly the fallback pose.
func (e Extrinsic) IsFallback() bool {
	return e == FallbackPose()
}
