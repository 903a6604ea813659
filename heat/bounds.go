package heat

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// Plane names the two axes treated as the ground for planar bucketing and
// distances. The remaining axis is "up".
type Plane int

const (
	// PlaneXZ is the default ground plane (Y up).
	PlaneXZ Plane = iota
	PlaneXY
	PlaneYZ
)

// ParsePlane accepts "xz", "xy" or "yz" (case-insensitive). Empty means xz.
func ParsePlane(s string) (Plane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xz":
		return PlaneXZ, nil
	case "xy":
		return PlaneXY, nil
	case "yz":
		return PlaneYZ, nil
	}
	return PlaneXZ, fmt.Errorf("unknown plane %q (want xz, xy or yz)", s)
}

func (pl Plane) String() string {
	switch pl {
	case PlaneXY:
		return "xy"
	case PlaneYZ:
		return "yz"
	default:
		return "xz"
	}
}

// Axes returns the two ground coordinates of v.
func (pl Plane) Axes(v r3.Vector) (a, b float64) {
	switch pl {
	case PlaneXY:
		return v.X, v.Y
	case PlaneYZ:
		return v.Y, v.Z
	default:
		return v.X, v.Z
	}
}

// Up returns the coordinate of v perpendicular to the ground plane.
func (pl Plane) Up(v r3.Vector) float64 {
	switch pl {
	case PlaneXY:
		return v.Z
	case PlaneYZ:
		return v.X
	default:
		return v.Y
	}
}

// Compose is the inverse of Axes/Up.
func (pl Plane) Compose(a, b, up float64) r3.Vector {
	switch pl {
	case PlaneXY:
		return r3.Vector{X: a, Y: b, Z: up}
	case PlaneYZ:
		return r3.Vector{X: up, Y: a, Z: b}
	default:
		return r3.Vector{X: a, Y: up, Z: b}
	}
}

// groundPoint projects p onto the ground plane.
func (pl Plane) groundPoint(p WeightedPoint) orb.Point {
	a, b := pl.Axes(p.Vec())
	return orb.Point{a, b}
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// EmptyBox is the inverted box Bounds returns for an empty sequence:
// Min at +MaxFloat64 and Max at -MaxFloat64 on every axis.
func EmptyBox() Box {
	return Box{
		Min: r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
}

// Bounds scans points once and returns their axis-aligned box. Weight is
// ignored. For an empty sequence the result is EmptyBox(), which is not a
// usable box; callers must check IsEmpty or avoid the call.
func Bounds(points []WeightedPoint) Box {
	box := EmptyBox()
	for _, p := range points {
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Min.Z = math.Min(box.Min.Z, p.Z)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
		box.Max.Z = math.Max(box.Max.Z, p.Z)
	}
	return box
}

// IsEmpty reports whether the box is inverted on any axis.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Size returns the per-axis extent.
func (b Box) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// Center returns the midpoint of the box.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Ground returns the extent of the box on the given ground plane.
func (b Box) Ground(pl Plane) orb.Bound {
	minA, minB := pl.Axes(b.Min)
	maxA, maxB := pl.Axes(b.Max)
	return orb.Bound{Min: orb.Point{minA, minB}, Max: orb.Point{maxA, maxB}}
}
