package heat

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToFeatureCollection converts points to GeoJSON Point features on the
// ground plane. The up coordinate is kept in the "elevation" property and
// the weight in "weight".
func ToFeatureCollection(points []WeightedPoint, plane Plane) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(plane.groundPoint(p))
		f.ID = i
		f.Properties["weight"] = p.Weight
		f.Properties["elevation"] = plane.Up(p.Vec())
		fc.Append(f)
	}
	return fc
}

// FromFeatureCollection reads points written by ToFeatureCollection. Point
// features without a weight get weight 1; other geometry types are an error.
func FromFeatureCollection(fc *geojson.FeatureCollection, plane Plane) ([]WeightedPoint, error) {
	points := make([]WeightedPoint, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: geometry %T is not a Point", i, f.Geometry)
		}
		weight := f.Properties.MustFloat64("weight", 1)
		if !(weight > 0) {
			return nil, fmt.Errorf("feature %d: weight must be positive, got %g", i, weight)
		}
		up := f.Properties.MustFloat64("elevation", 0)
		points = append(points, NewWeightedPoint(plane.Compose(pt[0], pt[1], up), weight))
	}
	return points, nil
}

// MarshalGeoJSON encodes points as a GeoJSON FeatureCollection
func MarshalGeoJSON(points []WeightedPoint, plane Plane) ([]byte, error) {
	data, err := ToFeatureCollection(points, plane).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal geojson: %w", err)
	}
	return data, nil
}

// UnmarshalGeoJSON decodes a GeoJSON FeatureCollection of points
func UnmarshalGeoJSON(data []byte, plane Plane) ([]WeightedPoint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	return FromFeatureCollection(fc, plane)
}
