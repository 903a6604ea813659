package heat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// pointFile is the object form of a point file: {"points": [...]}
type pointFile struct {
	Points []WeightedPoint `json:"points"`
}

// ParsePointsFile reads and parses a point JSON file
func ParsePointsFile(path string) ([]WeightedPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParsePointsJSON(data)
}

// ParsePointsJSON parses either a bare array of points or an object with a
// "points" array. Every point must have a positive, finite weight.
func ParsePointsJSON(data []byte) ([]WeightedPoint, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("parsing JSON: empty input")
	}

	var points []WeightedPoint
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &points); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	} else {
		var f pointFile
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		points = f.Points
	}

	for i, p := range points {
		if !(p.Weight > 0) || math.IsInf(p.Weight, 0) {
			return nil, fmt.Errorf("point %d: weight must be positive, got %g", i, p.Weight)
		}
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
			return nil, fmt.Errorf("point %d: coordinates must be numbers", i)
		}
	}
	if points == nil {
		points = []WeightedPoint{}
	}
	return points, nil
}

// EncodePointsJSON writes points in the object form read by ParsePointsJSON
func EncodePointsJSON(points []WeightedPoint) ([]byte, error) {
	if points == nil {
		points = []WeightedPoint{}
	}
	return json.MarshalIndent(pointFile{Points: points}, "", "  ")
}

// PointSummary provides a summary of a point set
type PointSummary struct {
	Count       int
	TotalWeight float64
	MinWeight   float64
	MaxWeight   float64
	Bounds      Box
}

// Summarize extracts key figures from a point set. Bounds is only
// meaningful when Count > 0.
func Summarize(points []WeightedPoint) PointSummary {
	summary := PointSummary{
		Count:       len(points),
		TotalWeight: TotalWeight(points),
	}
	if len(points) == 0 {
		summary.Bounds = EmptyBox()
		return summary
	}

	summary.MinWeight = math.MaxFloat64
	for _, p := range points {
		summary.MinWeight = math.Min(summary.MinWeight, p.Weight)
		summary.MaxWeight = math.Max(summary.MaxWeight, p.Weight)
	}
	summary.Bounds = Bounds(points)
	return summary
}
