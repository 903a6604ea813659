package heat

import (
	"fmt"
	"strings"
)

// Strategy names one of the reduction algorithms.
type Strategy string

const (
	StrategyGrid     Strategy = "grid"
	StrategyCanopy   Strategy = "canopy"
	StrategyAverage  Strategy = "average"
	StrategyDecimate Strategy = "decimate"
)

// Strategies lists every strategy in a stable order.
func Strategies() []Strategy {
	return []Strategy{StrategyGrid, StrategyCanopy, StrategyAverage, StrategyDecimate}
}

// ParseStrategy resolves a strategy name. Empty selects grid, which keeps
// spatial locality regardless of input order.
func ParseStrategy(s string) (Strategy, error) {
	name := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if name == "" {
		return StrategyGrid, nil
	}
	for _, st := range Strategies() {
		if st == name {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Bounded reports whether the strategy guarantees at most MaxCount outputs.
func (s Strategy) Bounded() bool {
	return s != StrategyCanopy
}

// MarshalText implements encoding.TextMarshaler.
func (pl Plane) MarshalText() ([]byte, error) {
	return []byte(pl.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pl *Plane) UnmarshalText(text []byte) error {
	parsed, err := ParsePlane(string(text))
	if err != nil {
		return err
	}
	*pl = parsed
	return nil
}

// Params selects a strategy and its parameter.
type Params struct {
	Strategy    Strategy `yaml:"strategy" json:"strategy"`
	MaxCount    int      `yaml:"maxCount" json:"maxCount"`
	MaxDistance float64  `yaml:"maxDistance,omitempty" json:"maxDistance,omitempty"`
	Plane       Plane    `yaml:"plane" json:"plane"`
	Planar      bool     `yaml:"planar,omitempty" json:"planar,omitempty"` // canopy only
}

// DefaultParams reduces with the grid strategy to the render capacity.
func DefaultParams() Params {
	return Params{
		Strategy: StrategyGrid,
		MaxCount: MaxPoints,
		Plane:    PlaneXZ,
	}
}

// Validate reports parameters that would violate a reduction precondition.
func (p Params) Validate() error {
	switch p.Strategy {
	case StrategyGrid, StrategyAverage, StrategyDecimate:
		if p.MaxCount < 0 {
			return fmt.Errorf("%s: maxCount must not be negative, got %d", p.Strategy, p.MaxCount)
		}
	case StrategyCanopy:
		if !(p.MaxDistance > 0) {
			return fmt.Errorf("canopy: maxDistance must be positive, got %g", p.MaxDistance)
		}
	default:
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	if p.Plane < PlaneXZ || p.Plane > PlaneYZ {
		return fmt.Errorf("unknown plane %d", p.Plane)
	}
	return nil
}

// CheckCapacity reports a bounded strategy whose maxCount could not fit on
// a surface of the given capacity. Canopy output is only checked once it
// has been produced.
func (p Params) CheckCapacity(capacity int) error {
	if p.Strategy.Bounded() && p.MaxCount > capacity {
		return fmt.Errorf("%s: maxCount %d exceeds surface capacity %d", p.Strategy, p.MaxCount, capacity)
	}
	return nil
}

// Reduce runs the selected strategy. Invalid parameters are returned as an
// error instead of reaching the algorithms' precondition checks.
func Reduce(points []WeightedPoint, p Params) ([]WeightedPoint, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	switch p.Strategy {
	case StrategyCanopy:
		opt := WithVolumetricDistance()
		if p.Planar {
			opt = WithPlanarDistance(p.Plane)
		}
		return CanopyCluster(points, p.MaxDistance, opt), nil
	case StrategyAverage:
		return FixedClusterAverage(points, p.MaxCount), nil
	case StrategyDecimate:
		return FixedClusterDecimate(points, p.MaxCount), nil
	default:
		return GridPartition(points, p.MaxCount, p.Plane), nil
	}
}
