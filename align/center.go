package align

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SingularEpsilon is the determinant magnitude below which a matrix is
// treated as non-invertible.
const SingularEpsilon = 1e-12

// CameraCenter returns the world position of the camera, -R⁻¹t.
func CameraCenter(e Extrinsic) (r3.Vec, error) {
	r := e.Rotation()
	if math.Abs(mat.Det(r)) < SingularEpsilon {
		return r3.Vec{}, ErrSingularRotation
	}

	var inv mat.Dense
	if err := inv.Inverse(r); err != nil {
		return r3.Vec{}, errors.Wrap(ErrSingularRotation, err.Error())
	}

	t := e.Translation()
	var c mat.VecDense
	c.MulVec(&inv, mat.NewVecDense(3, []float64{t.X, t.Y, t.Z}))

	return r3.Vec{X: -c.AtVec(0), Y: -c.AtVec(1), Z: -c.AtVec(2)}, nil
}
