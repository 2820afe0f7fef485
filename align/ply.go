package align

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// WritePLY writes the columns of a 3xN matrix as an ASCII PLY point cloud
// with a black vertex color.
func WritePLY(w io.Writer, points mat.Matrix) error {
	rows, n := matrixDims(points)
	if n > 0 && rows != 3 {
		return shapeErrorf("PLY export needs 3xN points, got %dx%d", rows, n)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	fmt.Fprintf(bw, "element vertex %d\n", n)
	for _, p := range []string{"float x", "float y", "float z", "uchar red", "uchar green", "uchar blue"} {
		fmt.Fprintf(bw, "property %s\n", p)
	}
	fmt.Fprintln(bw, "end_header")
	for j := 0; j < n; j++ {
		fmt.Fprintf(bw, "%g %g %g 0 0 0\n", points.At(0, j), points.At(1, j), points.At(2, j))
	}
	return bw.Flush()
}

// SavePLY writes the points to path, creating its directory.
func SavePLY(path string, points mat.Matrix) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating PLY directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating PLY file: %w", err)
	}
	if err := WritePLY(f, points); err != nil {
		f.Close()
		return fmt.Errorf("writing PLY file: %w", err)
	}
	return f.Close()
}
