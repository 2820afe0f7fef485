package align

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestCameraCenter(t *testing.T) {
	tests := []struct {
		name   string
		rot    *mat.Dense
		center r3.Vec
	}{
		{"identity at origin", IdentityTransform().R, r3.Vec{}},
		{"identity offset", IdentityTransform().R, r3.Vec{X: 1, Y: -2, Z: 3}},
		{"rotated", rotationXYZ(0.3, -0.7, 1.9), r3.Vec{X: 4.5, Y: 0.25, Z: -8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CameraCenter(poseAt(tt.rot, tt.center))
			if err != nil {
				t.Fatalf("CameraCenter: %v", err)
			}
			if !vecAlmostEqual(got, tt.center, 1e-9) {
				t.Errorf("CameraCenter = %v, want %v", got, tt.center)
			}
		})
	}
}

func TestCameraCenter_NonOrthonormal(t *testing.T) {
	// R = 2I, t = (2, 4, 6): center = -R⁻¹t = (-1, -2, -3).
	e := Extrinsic{
		{2, 0, 0, 2},
		{0, 2, 0, 4},
		{0, 0, 2, 6},
	}
	got, err := CameraCenter(e)
	if err != nil {
		t.Fatalf("CameraCenter: %v", err)
	}
	want := r3.Vec{X: -1, Y: -2, Z: -3}
	if !vecAlmostEqual(got, want, 1e-12) {
		t.Errorf("CameraCenter = %v, want %v", got, want)
	}
}

func TestCameraCenter_Singular(t *testing.T) {
	e := Extrinsic{
		{1, 0, 0, 1},
		{0, 1, 0, 1},
		{0, 0, 0, 1},
	}
	_, err := CameraCenter(e)
	if !errors.Is(err, ErrSingularRotation) {
		t.Fatalf("expected ErrSingularRotation, got %v", err)
	}
}

func TestExtrinsicFromDense(t *testing.T) {
	h := mat.NewDense(4, 4, []float64{
		1, 0, 0, 5,
		0, 1, 0, 6,
		0, 0, 1, 7,
		0, 0, 0, 1,
	})
	e, err := ExtrinsicFromDense(h)
	if err != nil {
		t.Fatalf("ExtrinsicFromDense: %v", err)
	}
	if e.Translation() != (r3.Vec{X: 5, Y: 6, Z: 7}) {
		t.Errorf("Translation = %v", e.Translation())
	}
	if !mat.Equal(e.Homogeneous(), h) {
		t.Error("Homogeneous does not round-trip")
	}

	_, err = ExtrinsicFromDense(mat.NewDense(3, 3, nil))
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for 3x3, got %v", err)
	}
}
