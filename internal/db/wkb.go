package db

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of every stored geometry (WGS 84).
const SRID = 4326

// EncodeEWKB converts a Point or LineString to little-endian EWKB with
// SRID 4326.
func EncodeEWKB(g orb.Geometry) ([]byte, error) {
	var t geom.T

	switch v := g.(type) {
	case orb.Point:
		t = geom.NewPointFlat(geom.XY, []float64{v.Lon(), v.Lat()}).SetSRID(SRID)
	case orb.LineString:
		flat := make([]float64, 0, len(v)*2)
		for _, p := range v {
			flat = append(flat, p.Lon(), p.Lat())
		}
		t = geom.NewLineStringFlat(geom.XY, flat).SetSRID(SRID)
	default:
		return nil, eris.Errorf("db: encode EWKB: unsupported geometry %T", g)
	}

	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode EWKB")
	}
	return data, nil
}

// DecodeEWKBPoint reverses EncodeEWKB for points.
func DecodeEWKBPoint(data []byte) (orb.Point, error) {
	t, err := ewkb.Unmarshal(data)
	if err != nil {
		return orb.Point{}, eris.Wrap(err, "db: decode EWKB")
	}
	p, ok := t.(*geom.Point)
	if !ok {
		return orb.Point{}, eris.Errorf("db: decode EWKB: want point, got %T", t)
	}
	return orb.Point{p.X(), p.Y()}, nil
}
