package db

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestEncodeEWKB_Point(t *testing.T) {
	data, err := EncodeEWKB(orb.Point{10.1, 9.1})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(1), data[0], "little endian")

	p, err := DecodeEWKBPoint(data)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{10.1, 9.1}, p)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, SRID, g.SRID())
}

func TestEncodeEWKB_LineString(t *testing.T) {
	data, err := EncodeEWKB(orb.LineString{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	ls, ok := g.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, 3, ls.NumCoords())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, ls.FlatCoords())

	_, err = DecodeEWKBPoint(data)
	assert.Error(t, err)
}

func TestEncodeEWKB_Unsupported(t *testing.T) {
	_, err := EncodeEWKB(orb.Polygon{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry")
}
