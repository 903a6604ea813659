package heat

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// WeightedPoint is a 3D position carrying an accumulated mass.
// Points handed back from any reduction always have Weight > 0.
type WeightedPoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Weight float64 `json:"weight"`
}

// NewWeightedPoint builds a point from a position vector.
func NewWeightedPoint(v r3.Vector, weight float64) WeightedPoint {
	return WeightedPoint{X: v.X, Y: v.Y, Z: v.Z, Weight: weight}
}

// Vec returns the position as an r3 vector.
func (p WeightedPoint) Vec() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// PreconditionError is the panic value raised when a caller breaks a
// documented precondition (negative maxCount, non-positive distance, ...).
// It signals a caller bug and is not meant to be recovered.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Op, e.Reason)
}

func precondition(ok bool, op, format string, args ...interface{}) {
	if !ok {
		panic(&PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)})
	}
}

// Merge combines a and b into a single point at their weighted average
// position carrying the summed weight. a.Weight+b.Weight must be positive.
//
// Floating point makes Merge only approximately associative, so every
// reduction applies it left to right in a fixed order.
func Merge(a, b WeightedPoint) WeightedPoint {
	w := a.Weight + b.Weight
	precondition(w > 0, "merge", "combined weight %g is not positive", w)

	return WeightedPoint{
		X:      (a.X*a.Weight + b.X*b.Weight) / w,
		Y:      (a.Y*a.Weight + b.Y*b.Weight) / w,
		Z:      (a.Z*a.Weight + b.Z*b.Weight) / w,
		Weight: w,
	}
}

// mergeAll folds points left to right. points must be non-empty.
func mergeAll(points []WeightedPoint) WeightedPoint {
	acc := points[0]
	for _, p := range points[1:] {
		acc = Merge(acc, p)
	}
	return acc
}

// TotalWeight sums weights in slice order.
func TotalWeight(points []WeightedPoint) float64 {
	total := 0.0
	for _, p := range points {
		total += p.Weight
	}
	return total
}

// clonePoints returns a copy so identity fast paths never alias the input.
func clonePoints(points []WeightedPoint) []WeightedPoint {
	if points == nil {
		return nil
	}
	out := make([]WeightedPoint, len(points))
	copy(out, points)
	return out
}
