package heat

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, eps)

// scatter returns n deterministic pseudo-random points with weights in (0, 2]
func scatter(n int, seed int64) []WeightedPoint {
	rng := rand.New(rand.NewSource(seed))
	points := make([]WeightedPoint, n)
	for i := range points {
		points[i] = pt(rng.Float64()*100, rng.Float64()*10, rng.Float64()*100, 2-rng.Float64()*1.999)
	}
	return points
}

// ---------------------------------------------------------------------------
// GridPartition
// ---------------------------------------------------------------------------

func TestGridPartition_Lattice(t *testing.T) {
	var points []WeightedPoint
	for x := 0; x < 10; x++ {
		for z := 0; z < 10; z++ {
			points = append(points, pt(float64(x), 0, float64(z), 1))
		}
	}

	out := GridPartition(points, 9, PlaneXZ)

	require.Len(t, out, 9)
	assert.InDelta(t, 100.0, TotalWeight(out), eps)

	// Cells span 3 units; the last row and column also take x or z = 9.
	assertPointNear(t, pt(1, 0, 1, 9), out[0])
	assertPointNear(t, pt(1, 0, 7.5, 12), out[2])
	assertPointNear(t, pt(7.5, 0, 1, 12), out[6])
	assertPointNear(t, pt(7.5, 0, 7.5, 16), out[8])
}

func TestGridPartition_KeepsPointsOnMaxEdge(t *testing.T) {
	points := []WeightedPoint{
		pt(0, 0, 0, 1),
		pt(10, 0, 10, 1),
		pt(0, 0, 10, 1),
		pt(10, 0, 0, 1),
		pt(5, 0, 5, 1),
	}

	out := GridPartition(points, 4, PlaneXZ)

	want := []WeightedPoint{
		pt(0, 0, 0, 1),
		pt(0, 0, 10, 1),
		pt(10, 0, 0, 1),
		pt(7.5, 0, 7.5, 2),
	}
	if diff := cmp.Diff(want, out, approx); diff != "" {
		t.Errorf("GridPartition mismatch (-want +got):\n%s", diff)
	}
}

func TestGridPartition_DegenerateSpan(t *testing.T) {
	points := make([]WeightedPoint, 5)
	for i := range points {
		points[i] = pt(1, float64(i), 0, 1)
	}

	t.Run("one axis flat", func(t *testing.T) {
		out := GridPartition(points, 4, PlaneXY)
		want := []WeightedPoint{pt(1, 0.5, 0, 2), pt(1, 3, 0, 3)}
		if diff := cmp.Diff(want, out, approx); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("both axes flat", func(t *testing.T) {
		out := GridPartition(points, 4, PlaneXZ)
		require.Len(t, out, 1)
		assertPointNear(t, pt(1, 2, 0, 5), out[0])
	})
}

func TestGridPartition_Bounds(t *testing.T) {
	points := scatter(2000, 7)
	for _, maxCount := range []int{1, 2, 3, 4, 10, 100, 1023} {
		out := GridPartition(points, maxCount, PlaneXZ)
		assert.LessOrEqual(t, len(out), maxCount, "maxCount=%d", maxCount)
		assert.InDelta(t, TotalWeight(points), TotalWeight(out), 1e-6, "maxCount=%d", maxCount)
		for _, p := range out {
			assert.Greater(t, p.Weight, 0.0)
		}
	}
}

func TestGridPartition_Identity(t *testing.T) {
	points := unitLine(5)

	out := GridPartition(points, 5, PlaneXZ)
	assert.Equal(t, points, out)

	out[0].X = 42
	assert.Equal(t, 0.0, points[0].X, "identity result must be a copy")
}

func TestGridPartition_Zero(t *testing.T) {
	out := GridPartition(unitLine(5), 0, PlaneXZ)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestGridPartition_EmptyInput(t *testing.T) {
	assert.Empty(t, GridPartition(nil, 10, PlaneXZ))
	assert.Empty(t, GridPartition([]WeightedPoint{}, 0, PlaneXZ))
}

func TestGridPartition_NegativePanics(t *testing.T) {
	assert.PanicsWithError(t, "grid partition: precondition violated: maxCount -1 is negative", func() {
		GridPartition(unitLine(3), -1, PlaneXZ)
	})
}

// ---------------------------------------------------------------------------
// CanopyCluster
// ---------------------------------------------------------------------------

func TestCanopyCluster_TwoPairs(t *testing.T) {
	points := []WeightedPoint{
		pt(0, 0, 0, 1),
		pt(0, 0, 0.01, 1),
		pt(10, 10, 10, 1),
		pt(10, 10, 10.01, 1),
	}

	out := CanopyCluster(points, 0.1)

	want := []WeightedPoint{pt(0, 0, 0.005, 2), pt(10, 10, 10.005, 2)}
	if diff := cmp.Diff(want, out, approx); diff != "" {
		t.Errorf("CanopyCluster mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, CanopySingletons(points, 0.1))
}

func TestCanopyCluster_FirstMatchWins(t *testing.T) {
	// 0.9 is nearer to 1.5 but 0 was created first and is within range.
	points := []WeightedPoint{pt(0, 0, 0, 1), pt(1.5, 0, 0, 1), pt(0.9, 0, 0, 1)}

	out := CanopyCluster(points, 1)

	want := []WeightedPoint{pt(0.45, 0, 0, 2), pt(1.5, 0, 0, 1)}
	if diff := cmp.Diff(want, out, approx); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCanopyCluster_InclusiveDistance(t *testing.T) {
	out := CanopyCluster([]WeightedPoint{pt(0, 0, 0, 1), pt(0, 0, 1, 1)}, 1)
	require.Len(t, out, 1)
	assertPointNear(t, pt(0, 0, 0.5, 2), out[0])
}

func TestCanopyCluster_RepresentativeMoves(t *testing.T) {
	// After absorbing 0.8 the representative sits at 0.4, which brings 1.3
	// into range even though it is 1.3 from the first point.
	points := []WeightedPoint{pt(0, 0, 0, 1), pt(0.8, 0, 0, 1), pt(1.3, 0, 0, 1)}
	out := CanopyCluster(points, 1)
	require.Len(t, out, 1)
	assert.InDelta(t, 3.0, out[0].Weight, eps)
}

func TestCanopyCluster_PlanarDistance(t *testing.T) {
	// Stacked vertically: same XZ position, 5 units apart in Y.
	points := []WeightedPoint{pt(0, 0, 0, 1), pt(0, 5, 0, 1)}

	assert.Len(t, CanopyCluster(points, 1), 2)
	assert.Len(t, CanopyCluster(points, 1, WithVolumetricDistance()), 2)

	out := CanopyCluster(points, 1, WithPlanarDistance(PlaneXZ))
	require.Len(t, out, 1)
	assertPointNear(t, pt(0, 2.5, 0, 2), out[0])

	// On XY the vertical offset is in-plane again.
	assert.Len(t, CanopyCluster(points, 1, WithPlanarDistance(PlaneXY)), 2)
}

func TestCanopyCluster_KeepsSingletons(t *testing.T) {
	points := []WeightedPoint{pt(0, 0, 0, 1), pt(0.1, 0, 0, 1), pt(50, 0, 0, 3), pt(100, 0, 0, 1)}

	out := CanopyCluster(points, 1)

	require.Len(t, out, 3)
	assert.Equal(t, pt(50, 0, 0, 3), out[1])
	assert.Equal(t, pt(100, 0, 0, 1), out[2])
	assert.Equal(t, 2, CanopySingletons(points, 1))
}

func TestCanopyCluster_ConservesWeight(t *testing.T) {
	points := scatter(1500, 3)
	for _, d := range []float64{0.5, 5, 20, 500} {
		out := CanopyCluster(points, d)
		assert.InDelta(t, TotalWeight(points), TotalWeight(out), 1e-6, "maxDistance=%g", d)
		assert.LessOrEqual(t, len(out), len(points))
	}
	assert.Len(t, CanopyCluster(points, 500), 1)
}

func TestCanopyCluster_Empty(t *testing.T) {
	out := CanopyCluster(nil, 1)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestCanopyCluster_NonPositiveDistancePanics(t *testing.T) {
	assert.PanicsWithError(t, "canopy cluster: precondition violated: maxDistance 0 is not positive", func() {
		CanopyCluster(unitLine(2), 0)
	})
	assert.Panics(t, func() { CanopySingletons(unitLine(2), -1) })
}

// ---------------------------------------------------------------------------
// FixedClusterAverage / FixedClusterDecimate
// ---------------------------------------------------------------------------

func TestClusterSizing(t *testing.T) {
	tests := []struct {
		n, maxCount             int
		size, count, remainder int
	}{
		{10, 3, 4, 2, 2},
		{10, 5, 2, 5, 0},
		{7, 2, 4, 1, 3},
		{2000, 1023, 2, 1000, 0},
		{2047, 1023, 3, 682, 1},
	}
	for _, tt := range tests {
		size, count, remainder := clusterSizing(tt.n, tt.maxCount)
		assert.Equal(t, tt.size, size, "size n=%d m=%d", tt.n, tt.maxCount)
		assert.Equal(t, tt.count, count, "count n=%d m=%d", tt.n, tt.maxCount)
		assert.Equal(t, tt.remainder, remainder, "remainder n=%d m=%d", tt.n, tt.maxCount)
	}
}

func TestFixedClusterDecimate_TenToThree(t *testing.T) {
	out := FixedClusterDecimate(unitLine(10), 3)

	want := []WeightedPoint{pt(0, 0, 0, 4), pt(4, 0, 0, 4)}
	assert.Equal(t, want, out)
}

func TestFixedClusterAverage_TenToThree(t *testing.T) {
	out := FixedClusterAverage(unitLine(10), 3)

	want := []WeightedPoint{pt(1.5, 0, 0, 4), pt(5.5, 0, 0, 4), pt(8.5, 0, 0, 2)}
	if diff := cmp.Diff(want, out, approx); diff != "" {
		t.Errorf("FixedClusterAverage mismatch (-want +got):\n%s", diff)
	}
}

func TestFixedCluster_LargeRemainder(t *testing.T) {
	// 7 points into 2: one full run of 4 and a tail of 3.
	avg := FixedClusterAverage(unitLine(7), 2)
	require.Len(t, avg, 2)
	assertPointNear(t, pt(1.5, 0, 0, 4), avg[0])
	assertPointNear(t, pt(5, 0, 0, 3), avg[1])

	dec := FixedClusterDecimate(unitLine(7), 2)
	assert.Equal(t, []WeightedPoint{pt(0, 0, 0, 4)}, dec)
}

func TestFixedClusterAverage_Bounds(t *testing.T) {
	points := scatter(3000, 11)
	for _, maxCount := range []int{1, 2, 7, 100, 1023, 2999} {
		out := FixedClusterAverage(points, maxCount)
		assert.LessOrEqual(t, len(out), maxCount, "maxCount=%d", maxCount)
		assert.InDelta(t, TotalWeight(points), TotalWeight(out), 1e-6, "maxCount=%d", maxCount)
	}
}

func TestFixedClusterDecimate_Bounds(t *testing.T) {
	points := scatter(3000, 13)
	for _, maxCount := range []int{1, 2, 7, 100, 1023, 2999} {
		out := FixedClusterDecimate(points, maxCount)
		assert.LessOrEqual(t, len(out), maxCount, "maxCount=%d", maxCount)
		size, _, _ := clusterSizing(len(points), maxCount)
		for i, p := range out {
			src := points[i*size]
			assert.Equal(t, src.Vec(), p.Vec())
			assert.InDelta(t, src.Weight*float64(size), p.Weight, eps)
		}
	}
}

func TestFixedCluster_IdentityAndZero(t *testing.T) {
	points := unitLine(4)
	for name, fn := range map[string]func([]WeightedPoint, int) []WeightedPoint{
		"average":  FixedClusterAverage,
		"decimate": FixedClusterDecimate,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, points, fn(points, 4))
			assert.Equal(t, points, fn(points, 100))

			zero := fn(points, 0)
			assert.NotNil(t, zero)
			assert.Empty(t, zero)

			assert.Empty(t, fn(nil, 5))
			assert.Panics(t, func() { fn(points, -1) })
		})
	}
}

// ---------------------------------------------------------------------------
// Reduce / Params
// ---------------------------------------------------------------------------

func TestReduce_Dispatch(t *testing.T) {
	points := scatter(500, 5)

	tests := []struct {
		name   string
		params Params
		want   []WeightedPoint
	}{
		{"grid", Params{Strategy: StrategyGrid, MaxCount: 16}, GridPartition(points, 16, PlaneXZ)},
		{"grid xy", Params{Strategy: StrategyGrid, MaxCount: 16, Plane: PlaneXY}, GridPartition(points, 16, PlaneXY)},
		{"canopy", Params{Strategy: StrategyCanopy, MaxDistance: 10}, CanopyCluster(points, 10)},
		{"canopy planar", Params{Strategy: StrategyCanopy, MaxDistance: 10, Planar: true, Plane: PlaneYZ},
			CanopyCluster(points, 10, WithPlanarDistance(PlaneYZ))},
		{"average", Params{Strategy: StrategyAverage, MaxCount: 30}, FixedClusterAverage(points, 30)},
		{"decimate", Params{Strategy: StrategyDecimate, MaxCount: 30}, FixedClusterDecimate(points, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reduce(points, tt.params)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Reduce mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReduce_InvalidParams(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{"negative maxCount", Params{Strategy: StrategyGrid, MaxCount: -1}, "maxCount must not be negative"},
		{"zero distance", Params{Strategy: StrategyCanopy}, "maxDistance must be positive"},
		{"unknown strategy", Params{Strategy: "voronoi", MaxCount: 1}, `unknown strategy "voronoi"`},
		{"unknown plane", Params{Strategy: StrategyGrid, MaxCount: 1, Plane: Plane(9)}, "unknown plane 9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := Reduce(unitLine(3), tt.params)
				assert.ErrorContains(t, err, "reduce: ")
				assert.ErrorContains(t, err, tt.wantErr)
			})
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyGrid, false},
		{"grid", StrategyGrid, false},
		{"Canopy", StrategyCanopy, false},
		{" average", StrategyAverage, false},
		{"decimate", StrategyDecimate, false},
		{"kmeans", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestStrategy_Bounded(t *testing.T) {
	for _, s := range Strategies() {
		assert.Equal(t, s != StrategyCanopy, s.Bounded(), string(s))
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.NoError(t, p.Validate())
	assert.Equal(t, StrategyGrid, p.Strategy)
	assert.Equal(t, MaxPoints, p.MaxCount)
	assert.Equal(t, PlaneXZ, p.Plane)
}

func TestReduce_NoMemoryBetweenCalls(t *testing.T) {
	points := scatter(400, 17)
	p := Params{Strategy: StrategyGrid, MaxCount: 25}

	first, err := Reduce(points, p)
	require.NoError(t, err)

	p.MaxCount = 4
	_, err = Reduce(points, p)
	require.NoError(t, err)

	p.MaxCount = 25
	again, err := Reduce(points, p)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}
