package heat

// clusterSizing splits n ordered points into runs for a target of maxCount
// outputs: size = ceil(n/maxCount) points per full run, count full runs from
// the front, and remainder points left over at the tail.
func clusterSizing(n, maxCount int) (size, count, remainder int) {
	size = (n + maxCount - 1) / maxCount
	count = n / size
	remainder = n - count*size
	return size, count, remainder
}

// FixedClusterAverage splits points into contiguous runs of
// ceil(len/maxCount) and merges each run, in order, into one point. A
// shorter trailing run is merged into one extra point, so no weight is lost.
//
// Results depend on input order; this suits trajectories where neighbours
// in the sequence are neighbours in space.
func FixedClusterAverage(points []WeightedPoint, maxCount int) []WeightedPoint {
	precondition(maxCount >= 0, "fixed cluster average", "maxCount %d is negative", maxCount)

	if maxCount >= len(points) {
		return clonePoints(points)
	}
	if maxCount == 0 {
		return []WeightedPoint{}
	}

	size, count, remainder := clusterSizing(len(points), maxCount)

	out := make([]WeightedPoint, 0, count+1)
	for c := 0; c < count; c++ {
		out = append(out, mergeAll(points[c*size:(c+1)*size]))
	}
	if remainder > 0 {
		out = append(out, mergeAll(points[count*size:]))
	}
	return out
}

// FixedClusterDecimate keeps the first point of every full run of
// ceil(len/maxCount) points, scaling its weight by the run length to stand
// in for the points dropped after it. The trailing partial run is
// discarded entirely, unlike FixedClusterAverage.
func FixedClusterDecimate(points []WeightedPoint, maxCount int) []WeightedPoint {
	precondition(maxCount >= 0, "fixed cluster decimate", "maxCount %d is negative", maxCount)

	if maxCount >= len(points) {
		return clonePoints(points)
	}
	if maxCount == 0 {
		return []WeightedPoint{}
	}

	size, count, _ := clusterSizing(len(points), maxCount)

	out := make([]WeightedPoint, 0, count)
	for c := 0; c < count; c++ {
		p := points[c*size]
		p.Weight *= float64(size)
		out = append(out, p)
	}
	return out
}
