package align

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func vecAlmostEqual(a, b r3.Vec, tolerance float64) bool {
	return r3.Norm(r3.Sub(a, b)) <= tolerance
}

// rotationXYZ composes rotations about x, y and z (radians) as Rz·Ry·Rx.
func rotationXYZ(ax, ay, az float64) *mat.Dense {
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(ax), -math.Sin(ax),
		0, math.Sin(ax), math.Cos(ax),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(ay), 0, math.Sin(ay),
		0, 1, 0,
		-math.Sin(ay), 0, math.Cos(ay),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(az), -math.Sin(az), 0,
		math.Sin(az), math.Cos(az), 0,
		0, 0, 1,
	})
	var r mat.Dense
	r.Mul(rz, ry)
	r.Mul(&r, rx)
	return &r
}

// poseAt builds an extrinsic with rotation r whose camera center is c.
func poseAt(r mat.Matrix, c r3.Vec) Extrinsic {
	t := rotate(r, c)
	var e Extrinsic
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e[i][j] = r.At(i, j)
		}
	}
	e[0][3], e[1][3], e[2][3] = -t.X, -t.Y, -t.Z
	return e
}

func identityPoseAt(c r3.Vec) Extrinsic {
	return poseAt(IdentityTransform().R, c)
}

func randomPoints(rng *rand.Rand, n int, spread float64) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{
			X: (rng.Float64()*2 - 1) * spread,
			Y: (rng.Float64()*2 - 1) * spread,
			Z: (rng.Float64()*2 - 1) * spread,
		}
	}
	return pts
}

func assertProperRotation(t *testing.T, r mat.Matrix) {
	t.Helper()
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if !almostEqual(rtr.At(i, j), want, 1e-9) {
				t.Fatalf("RᵀR[%d][%d] = %g, want %g", i, j, rtr.At(i, j), want)
			}
		}
	}
	if det := mat.Det(r); !almostEqual(det, 1, 1e-9) {
		t.Fatalf("det(R) = %g, want 1", det)
	}
}

func matricesAlmostEqual(a, b mat.Matrix, tolerance float64) bool {
	return mat.EqualApprox(a, b, tolerance)
}
