package source

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadShapefile reads a shapefile and its .dbf attributes. Numeric fields
// become float64 properties; every other field is a trimmed string. Records
// without a geometry are skipped.
func LoadShapefile(shpPath string) (*geojson.FeatureCollection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	fc := geojson.NewFeatureCollection()
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		f := geojson.NewFeature(g)
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				continue
			}
			f.Properties[name] = attributeValue(fields[i].Fieldtype, val)
		}
		fc.Append(f)
	}

	if skipped > 0 {
		zap.L().Debug("source: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return fc, nil
}

func attributeValue(fieldType byte, val string) any {
	switch fieldType {
	case 'N', 'F':
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
	case 'L':
		switch val {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
	}
	return val
}

// shapeGeometry converts a go-shp shape to orb. Polygon parts wound
// clockwise start a new polygon and counter-clockwise parts are holes of the
// polygon before them. Returns nil for unsupported or empty shapes.
func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}

	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		mp := make(orb.MultiPoint, len(s.Points))
		for i, p := range s.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp

	case *shp.PolyLine:
		parts := splitParts(s.Parts, s.Points)
		switch len(parts) {
		case 0:
			return nil
		case 1:
			return orb.LineString(parts[0])
		}
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls

	case *shp.Polygon:
		return assemblePolygons(splitParts(s.Parts, s.Points))
	}
	return nil
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	var out [][]orb.Point
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(points)) {
			continue
		}

		coords := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			coords = append(coords, orb.Point{p.X, p.Y})
		}
		out = append(out, coords)
	}
	return out
}

func assemblePolygons(rings [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, pts := range rings {
		ring := orb.Ring(pts)
		if len(mp) == 0 || ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
