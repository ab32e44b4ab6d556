// Package images - Geometry and image utilities for detection evaluation.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Rect is an axis-aligned box in pixel space.
//
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner. Coordinates are float32 so
// that sub-pixel model outputs survive until they are compared.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the box width, or 0 for a degenerate box.
func (r Rect) Width() float32 {
	return math32.Max(r.X2-r.X1, 0)
}

// Height returns the box height, or 0 for a degenerate box.
func (r Rect) Height() float32 {
	return math32.Max(r.Y2-r.Y1, 0)
}

// Area returns the area of the box in square pixels.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Scale multiplies the x coordinates by sx and the y coordinates by sy.
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{X1: r.X1 * sx, Y1: r.Y1 * sy, X2: r.X2 * sx, Y2: r.Y2 * sy}
}

// Clip restricts the box to [0,width]x[0,height].
func (r Rect) Clip(width, height float32) Rect {
	return Rect{
		X1: math32.Min(math32.Max(r.X1, 0), width),
		Y1: math32.Min(math32.Max(r.Y1, 0), height),
		X2: math32.Min(math32.Max(r.X2, 0), width),
		Y2: math32.Min(math32.Max(r.Y2, 0), height),
	}
}

// ToRectangle converts the box to an integral image.Rectangle.
//
// This loses fractional pixels around the edges, so only use it for drawing.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// The result is symmetric, lies in [0, 1], is 1 for identical boxes with a positive area and
// is 0 when the boxes share no area (touching edges included).
//
// Arguments:
//   - r: The first box.
//   - o: The second box.
//
// Returns:
//   - float32: The IoU score.
//
// Example:
//
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}

// IoUMatrix computes the pairwise IoU between every box in a and every box in b.
//
// The result is a dense float32 tensor of shape [len(a), len(b)] whose element (i, j) is
// CalculateIoU(a[i], b[j]). Both slices must be non-empty.
//
// Arguments:
//   - a: The row boxes (usually predictions).
//   - b: The column boxes (usually ground truth).
//
// Returns:
//   - *tensor.Dense: The IoU matrix.
func IoUMatrix(a, b []Rect) *tensor.Dense {
	data := make([]float32, len(a)*len(b))
	for i := range a {
		row := data[i*len(b) : (i+1)*len(b)]
		for j := range b {
			row[j] = CalculateIoU(a[i], b[j])
		}
	}
	return tensor.New(tensor.WithShape(len(a), len(b)), tensor.WithBacking(data))
}

// Row returns row i of a matrix produced by IoUMatrix.
//
// The returned slice aliases the matrix backing store and must not be modified.
func Row(m *tensor.Dense, i int) []float32 {
	cols := m.Shape()[1]
	return m.Float32s()[i*cols : (i+1)*cols]
}

// BestMatches reduces a matrix produced by IoUMatrix to the column of the highest IoU in each row.
//
// Ties resolve to the lowest column index.
//
// Arguments:
//   - m: The IoU matrix of shape [rows, cols], both non-zero.
//
// Returns:
//   - []int: The best column per row.
//   - error: When the reduction fails.
func BestMatches(m *tensor.Dense) ([]int, error) {
	best, err := m.Argmax(1)
	if err != nil {
		return nil, errors.Wrap(err, "argmax over iou rows")
	}
	switch v := best.Data().(type) {
	case []int:
		return append([]int(nil), v...), nil
	case int:
		return []int{v}, nil
	default:
		return nil, errors.Errorf("unexpected argmax data %T", v)
	}
}
