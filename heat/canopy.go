package heat

import (
	"github.com/paulmach/orb/planar"
)

// CanopyOption configures CanopyCluster.
type CanopyOption func(*canopyConfig)

type canopyConfig struct {
	planar bool
	plane  Plane
}

// WithPlanarDistance measures distance on the given ground plane only,
// ignoring the up axis.
func WithPlanarDistance(plane Plane) CanopyOption {
	return func(c *canopyConfig) {
		c.planar = true
		c.plane = plane
	}
}

// WithVolumetricDistance measures distance over all three axes (default).
func WithVolumetricDistance() CanopyOption {
	return func(c *canopyConfig) {
		c.planar = false
	}
}

// representative is a canopy center plus whether it has absorbed any point
// beyond the one that created it.
type representative struct {
	point   WeightedPoint
	touched bool
}

// CanopyCluster groups points in a single greedy pass. Each point joins the
// first existing representative (in creation order) within maxDistance and
// is merged into it; otherwise it starts a new representative. There is no
// search for the nearest candidate.
//
// Every representative is returned, including ones that never absorbed a
// second point. The output size is not bounded; callers must check it
// against their capacity. maxDistance must be positive.
func CanopyCluster(points []WeightedPoint, maxDistance float64, opts ...CanopyOption) []WeightedPoint {
	reps := canopy(points, maxDistance, opts)

	out := make([]WeightedPoint, len(reps))
	for i, r := range reps {
		out[i] = r.point
	}
	return out
}

// CanopySingletons reports how many representatives CanopyCluster would
// return that never absorbed a second point.
func CanopySingletons(points []WeightedPoint, maxDistance float64, opts ...CanopyOption) int {
	n := 0
	for _, r := range canopy(points, maxDistance, opts) {
		if !r.touched {
			n++
		}
	}
	return n
}

func canopy(points []WeightedPoint, maxDistance float64, opts []CanopyOption) []representative {
	precondition(maxDistance > 0, "canopy cluster", "maxDistance %g is not positive", maxDistance)

	cfg := canopyConfig{plane: PlaneXZ}
	for _, opt := range opts {
		opt(&cfg)
	}

	limit := maxDistance * maxDistance
	distance2 := func(a, b WeightedPoint) float64 {
		if cfg.planar {
			return planar.DistanceSquared(cfg.plane.groundPoint(a), cfg.plane.groundPoint(b))
		}
		return a.Vec().Sub(b.Vec()).Norm2()
	}

	reps := make([]representative, 0)
	for _, p := range points {
		joined := false
		for i := range reps {
			if distance2(reps[i].point, p) <= limit {
				reps[i].point = Merge(reps[i].point, p)
				reps[i].touched = true
				joined = true
				break
			}
		}
		if !joined {
			reps = append(reps, representative{point: p})
		}
	}
	return reps
}
