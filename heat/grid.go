package heat

import (
	"math"

	"github.com/paulmach/orb"
)

// GridPartition reduces points onto an n×n grid laid over the ground plane,
// where n = floor(sqrt(maxCount)), merging every point of a cell into one.
//
// Rows run over the first ground axis and columns over the second. Each cell
// covers [lo, hi) on both axes except the last row and column, which are
// closed above so points on the far edge of the bounds are kept. Cells are
// visited row-major and points merged in input order, so the result is
// independent of map iteration or sorting. Empty cells produce nothing.
//
// maxCount >= len(points) returns a copy of the input and maxCount == 0
// returns an empty slice; a negative maxCount panics.
func GridPartition(points []WeightedPoint, maxCount int, plane Plane) []WeightedPoint {
	precondition(maxCount >= 0, "grid partition", "maxCount %d is negative", maxCount)

	if maxCount >= len(points) {
		return clonePoints(points)
	}
	if maxCount == 0 {
		return []WeightedPoint{}
	}

	n := int(math.Sqrt(float64(maxCount)))
	ground := Bounds(points).Ground(plane)
	stepA := (ground.Max[0] - ground.Min[0]) / float64(n)
	stepB := (ground.Max[1] - ground.Min[1]) / float64(n)

	coords := make([]orb.Point, len(points))
	for i, p := range points {
		coords[i] = plane.groundPoint(p)
	}

	out := make([]WeightedPoint, 0, n*n)
	for row := 0; row < n; row++ {
		loA, hiA := cellRange(ground.Min[0], stepA, row, n)
		for col := 0; col < n; col++ {
			loB, hiB := cellRange(ground.Min[1], stepB, col, n)

			var cell WeightedPoint
			occupied := false
			for i, c := range coords {
				if c[0] < loA || c[0] >= hiA || c[1] < loB || c[1] >= hiB {
					continue
				}
				if !occupied {
					cell = points[i]
					occupied = true
					continue
				}
				cell = Merge(cell, points[i])
			}
			if occupied {
				out = append(out, cell)
			}
		}
	}

	return out
}

// cellRange returns the half-open interval of cell i out of n starting at
// min. The last cell extends to +Inf.
func cellRange(min, step float64, i, n int) (lo, hi float64) {
	lo = min + float64(i)*step
	if i == n-1 {
		return lo, math.Inf(1)
	}
	return lo, min + float64(i+1)*step
}
