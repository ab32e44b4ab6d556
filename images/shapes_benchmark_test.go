package images

import (
	"fmt"
	"math/rand"
	"testing"
)

// randomRects returns n boxes inside a 640x640 frame from a fixed seed.
func randomRects(n int, seed int64) []Rect {
	rng := rand.New(rand.NewSource(seed))
	rects := make([]Rect, n)
	for i := range rects {
		x := rng.Float32() * 600
		y := rng.Float32() * 600
		rects[i] = Rect{X1: x, Y1: y, X2: x + 10 + rng.Float32()*100, Y2: y + 10 + rng.Float32()*100}
	}
	return rects
}

// BenchmarkIoU_NonOverlapping tests performance with rectangles that don't overlap.
// This is the cheapest path as the intersection is empty.
func BenchmarkIoU_NonOverlapping(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 200, Y1: 200, X2: 300, Y2: 300}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_PartialOverlap tests the typical prediction against ground truth comparison.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoUMatrix measures the pairwise matrix for growing detection counts.
func BenchmarkIoUMatrix(b *testing.B) {
	for _, n := range []int{10, 100, 300} {
		preds := randomRects(n, 1)
		gt := randomRects(n/2+1, 2)
		b.Run(fmt.Sprintf("preds=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = IoUMatrix(preds, gt)
			}
		})
	}
}
