package align

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

const (
	// ScaleEpsilon bounds the source spread used as the scale denominator so
	// near-coincident source points do not divide by zero.
	ScaleEpsilon = 1e-7
	// MinCorrespondences is the smallest point count a similarity fit accepts.
	MinCorrespondences = 3
)

// OrthonormalProjection returns the proper rotation closest to the square
// matrix m: with m = UΣVᵀ it returns VUᵀ, negating the last column of V first
// when that product would be a reflection.
func OrthonormalProjection(m mat.Matrix) (*mat.Dense, error) {
	r, c := matrixDims(m)
	if r == 0 || r != c {
		return nil, shapeErrorf("orthonormal projection needs a square matrix, got %dx%d", r, c)
	}

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, errors.Wrapf(ErrFactorization, "%dx%d matrix", r, c)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&v, u.T())
	if mat.Det(&rot) < 0 {
		for i := 0; i < r; i++ {
			v.Set(i, c-1, -v.At(i, c-1))
		}
		rot.Mul(&v, u.T())
	}
	return &rot, nil
}

// FitSimilarity computes the least-squares similarity transform mapping the
// columns of p onto the columns of q, so that q ≈ R·(s·p) + t. Both inputs are
// 3xN with N >= MinCorrespondences.
func FitSimilarity(p, q mat.Matrix) (SimilarityTransform, error) {
	pr, pc := matrixDims(p)
	qr, qc := matrixDims(q)
	if pc == 0 && qc == 0 {
		return SimilarityTransform{}, newFitError(FitInsufficientPoints, "no points")
	}
	if pr != 3 || qr != 3 {
		return SimilarityTransform{}, newFitError(FitInvalidShape, "3D points are required, got %d and %d rows", pr, qr)
	}
	if pc != qc {
		return SimilarityTransform{}, newFitError(FitInvalidShape, "point counts differ: %d vs %d", pc, qc)
	}
	if pc < MinCorrespondences {
		return SimilarityTransform{}, newFitError(FitInsufficientPoints, "got %d points", pc)
	}
	n := pc

	cp := centroid(p, n)
	cq := centroid(q, n)

	distP := make([]float64, n)
	distQ := make([]float64, n)
	for j := 0; j < n; j++ {
		distP[j] = r3.Norm(r3.Sub(column(p, j), cp))
		distQ[j] = r3.Norm(r3.Sub(column(q, j), cq))
	}
	s := stat.Mean(distQ, nil) / math.Max(stat.Mean(distP, nil), ScaleEpsilon)

	pn := mat.NewDense(3, n, nil)
	qn := mat.NewDense(3, n, nil)
	for j := 0; j < n; j++ {
		a := r3.Scale(s, r3.Sub(column(p, j), cp))
		b := r3.Sub(column(q, j), cq)
		pn.Set(0, j, a.X)
		pn.Set(1, j, a.Y)
		pn.Set(2, j, a.Z)
		qn.Set(0, j, b.X)
		qn.Set(1, j, b.Y)
		qn.Set(2, j, b.Z)
	}

	var h mat.Dense
	h.Mul(pn, qn.T())
	rot, err := OrthonormalProjection(&h)
	if err != nil {
		return SimilarityTransform{}, &FitError{Kind: FitDegenerate, Detail: "cross-covariance", cause: err}
	}

	t := r3.Sub(cq, rotate(rot, r3.Scale(s, cp)))
	return SimilarityTransform{R: rot, T: t, S: s}, nil
}

// Fit runs FitSimilarity on the set, reporting an empty set as
// FitNoCorrespondence.
func (c CorrespondenceSet) Fit() (SimilarityTransform, error) {
	if c.Len() == 0 {
		return SimilarityTransform{}, newFitError(FitNoCorrespondence, "0 shared frames")
	}
	return FitSimilarity(c.Source, c.Dest)
}

func centroid(m mat.Matrix, n int) r3.Vec {
	var sum r3.Vec
	for j := 0; j < n; j++ {
		sum = r3.Add(sum, column(m, j))
	}
	return r3.Scale(1/float64(n), sum)
}
