package arrowline

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// BuildLine reduces every feature of fc to its Centroid and returns the
// points in feature order. Coincident points are kept.
func BuildLine(fc *geojson.FeatureCollection) (orb.LineString, error) {
	return BuildLineFunc(fc, Centroid)
}

// BuildLineFunc is BuildLine with a caller-chosen reduction.
func BuildLineFunc(fc *geojson.FeatureCollection, center CenterFunc) (orb.LineString, error) {
	if fc == nil {
		return orb.LineString{}, nil
	}

	line := make(orb.LineString, 0, len(fc.Features))
	for i, f := range fc.Features {
		var g orb.Geometry
		if f != nil {
			g = f.Geometry
		}
		p, err := center(g)
		if err != nil {
			return nil, eris.Wrapf(err, "arrowline: feature %d", i)
		}
		line = append(line, p)
	}
	return line, nil
}
