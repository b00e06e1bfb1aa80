package arrowline

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// BearingProperty is the property key carrying an arrow head's bearing in
// degrees clockwise from north.
const BearingProperty = "arrow-head-bearing"

// AnchorFunc picks where on a segment an arrow head is placed.
type AnchorFunc func(from, to orb.Point) orb.Point

// Midpoint is the coordinate-wise mean of the segment end points.
func Midpoint(from, to orb.Point) orb.Point {
	return orb.Point{(from.Lon() + to.Lon()) / 2, (from.Lat() + to.Lat()) / 2}
}

// GreatCircleMidpoint is the point halfway along the great circle joining the
// segment end points.
func GreatCircleMidpoint(from, to orb.Point) orb.Point {
	return geo.Midpoint(from, to)
}

// Bearing returns the initial great-circle bearing from one point to another,
// normalized to [0, 360). Identical points have bearing 0.
func Bearing(from, to orb.Point) float64 {
	b := math.Mod(geo.Bearing(from, to), 360)
	if b < 0 {
		b += 360
	}
	if b >= 360 || b == 0 {
		// Folds -0 and values that round up to 360.
		return 0
	}
	return b
}

// GenerateArrowHeads returns one Point feature per segment of line, anchored
// at the segment midpoint and carrying its bearing under BearingProperty.
// Lines with fewer than two points yield an empty collection.
func GenerateArrowHeads(line orb.LineString) *geojson.FeatureCollection {
	return GenerateArrowHeadsFunc(line, Midpoint)
}

// GenerateArrowHeadsFunc is GenerateArrowHeads with a caller-chosen anchor.
func GenerateArrowHeadsFunc(line orb.LineString, anchor AnchorFunc) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 1; i < len(line); i++ {
		from, to := line[i-1], line[i]

		f := geojson.NewFeature(anchor(from, to))
		f.Properties[BearingProperty] = Bearing(from, to)
		fc.Append(f)
	}
	return fc
}
