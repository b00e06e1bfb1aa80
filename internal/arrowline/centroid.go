package arrowline

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// CenterFunc reduces a geometry to a single representative point.
type CenterFunc func(orb.Geometry) (orb.Point, error)

// Centroid returns the unweighted arithmetic mean of the longitudes and of the
// latitudes of every vertex in g. Points are returned unchanged.
//
// This is not a geometric centroid: polygon holes contribute their vertices
// like the outer ring does and nothing is area weighted. Rings are taken as
// given, so a closed ring counts its repeated first vertex twice.
func Centroid(g orb.Geometry) (orb.Point, error) {
	var m vertexMean

	switch geom := g.(type) {
	case orb.Point:
		return geom, nil
	case orb.LineString:
		m.add(geom)
	case orb.Polygon:
		m.addPolygon(geom)
	case orb.MultiPolygon:
		for _, p := range geom {
			m.addPolygon(p)
		}
	default:
		return orb.Point{}, eris.Wrapf(ErrUnsupportedGeometryKind, "arrowline: centroid of %T", g)
	}

	if m.n == 0 {
		return orb.Point{}, eris.Wrapf(ErrEmptyGeometry, "arrowline: centroid of empty %s", g.GeoJSONType())
	}
	return m.point(), nil
}

// BoundsCenter returns the center of the bounding box of g. For polygons the
// bounding box is that of the outer ring, so holes never move the result.
// It accepts the same geometry kinds as Centroid.
func BoundsCenter(g orb.Geometry) (orb.Point, error) {
	var n int

	switch geom := g.(type) {
	case orb.Point:
		return geom, nil
	case orb.LineString:
		n = len(geom)
	case orb.Polygon:
		if len(geom) > 0 {
			n = len(geom[0])
		}
	case orb.MultiPolygon:
		for _, p := range geom {
			if len(p) > 0 {
				n += len(p[0])
			}
		}
	default:
		return orb.Point{}, eris.Wrapf(ErrUnsupportedGeometryKind, "arrowline: bounds center of %T", g)
	}

	if n == 0 {
		return orb.Point{}, eris.Wrapf(ErrEmptyGeometry, "arrowline: bounds center of empty %s", g.GeoJSONType())
	}
	return g.Bound().Center(), nil
}

type vertexMean struct {
	lon, lat float64
	n        int
}

func (m *vertexMean) add(pts []orb.Point) {
	for _, p := range pts {
		m.lon += p.Lon()
		m.lat += p.Lat()
		m.n++
	}
}

func (m *vertexMean) addPolygon(p orb.Polygon) {
	for _, ring := range p {
		m.add(ring)
	}
}

func (m *vertexMean) point() orb.Point {
	return orb.Point{m.lon / float64(m.n), m.lat / float64(m.n)}
}
