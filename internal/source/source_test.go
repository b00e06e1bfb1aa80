package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"a.geojson":  FormatGeoJSON,
		"b.JSON":     FormatGeoJSON,
		"roads.shp":  FormatShapefile,
		"sites.xlsx": FormatXLSX,
	}
	for path, want := range tests {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := DetectFormat("data.csv")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = LoadFormat("data.csv", "csv")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestParseGeoJSON_FeatureCollection(t *testing.T) {
	fc, err := ParseGeoJSON([]byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [9.1, 9.1]}, "properties": {"rank": 2}},
			{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[9.1,9.1],[11.1,9.1],[11.1,2.1],[9.1,2.1]]]}, "properties": {"rank": 1}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{9.1, 9.1}, fc.Features[0].Geometry)
	assert.InDelta(t, 2.0, fc.Features[0].Properties.MustFloat64("rank"), 0)
	_, isPolygon := fc.Features[1].Geometry.(orb.Polygon)
	assert.True(t, isPolygon)
}

func TestParseGeoJSON_SingleFeatureAndGeometry(t *testing.T) {
	fc, err := ParseGeoJSON([]byte(`{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {"name": "x"}}`))
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "x", fc.Features[0].Properties.MustString("name"))

	fc, err = ParseGeoJSON([]byte(`{"type": "LineString", "coordinates": [[1, 2], [3, 4]]}`))
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.LineString{{1, 2}, {3, 4}}, fc.Features[0].Geometry)
}

func TestParseGeoJSON_Errors(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseGeoJSON([]byte(`{"features": []}`))
	assert.Error(t, err)
}

func TestLoadGeoJSON(t *testing.T) {
	path := writeFile(t, "points.geojson", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{}}]}`)

	fc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1)

	_, err = LoadGeoJSON(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestReadGeoJSON(t *testing.T) {
	fc, err := ReadGeoJSON(strings.NewReader(`{"type":"Point","coordinates":[5,6]}`))
	require.NoError(t, err)
	assert.Equal(t, orb.Point{5, 6}, fc.Features[0].Geometry)
}

func createTestShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stops.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.FloatField("RANK", 10, 2),
	}))

	points := []struct {
		x, y float64
		name string
		rank float64
	}{
		{9.1, 9.1, "north", 2},
		{11.1, 2.1, "south", 1},
	}
	for i, p := range points {
		w.Write(&shp.Point{X: p.x, Y: p.y})
		require.NoError(t, w.WriteAttribute(i, 0, p.name))
		require.NoError(t, w.WriteAttribute(i, 1, p.rank))
	}
	w.Close()
	return path
}

func TestLoadShapefile(t *testing.T) {
	path := createTestShapefile(t)

	fc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Equal(t, orb.Point{9.1, 9.1}, fc.Features[0].Geometry)
	assert.Equal(t, "north", fc.Features[0].Properties.MustString("NAME"))
	assert.InDelta(t, 2.0, fc.Features[0].Properties.MustFloat64("RANK"), 1e-9)
	assert.InDelta(t, 1.0, fc.Features[1].Properties.MustFloat64("RANK"), 1e-9)
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "none.shp"))
	assert.Error(t, err)
}

func TestShapeGeometry_PolygonParts(t *testing.T) {
	// Clockwise outer ring followed by a counter-clockwise hole.
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	pl := shp.NewPolyLine([][]shp.Point{outer, hole})
	poly := shp.Polygon(*pl)

	g := shapeGeometry(&poly)
	p, ok := g.(orb.Polygon)
	require.True(t, ok, "got %T", g)
	assert.Len(t, p, 2)

	second := []shp.Point{{X: 20, Y: 0}, {X: 20, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 0}, {X: 20, Y: 0}}
	pl = shp.NewPolyLine([][]shp.Point{outer, second})
	poly = shp.Polygon(*pl)
	_, ok = shapeGeometry(&poly).(orb.MultiPolygon)
	assert.True(t, ok)
}

func TestShapeGeometry_PolyLine(t *testing.T) {
	pl := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, shapeGeometry(pl))

	pl = shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}, {{X: 5, Y: 5}, {X: 6, Y: 6}}})
	_, ok := shapeGeometry(pl).(orb.MultiLineString)
	assert.True(t, ok)

	assert.Nil(t, shapeGeometry(nil))
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sites")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "sites.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Name", "Latitude", "Longitude", "Visited"},
		{"Depot", "9.1", "11.1", "2020-01-01 00:00:00"},
		{"Broken", "abc", "11.1", ""},
		{"Stop", "2.1", "9.1", "2020-01-02 00:00:00"},
	})

	fc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Equal(t, orb.Point{11.1, 9.1}, fc.Features[0].Geometry)
	assert.Equal(t, "Depot", fc.Features[0].Properties.MustString("Name"))
	assert.Equal(t, "2020-01-01 00:00:00", fc.Features[0].Properties.MustString("Visited"))
	assert.NotContains(t, fc.Features[0].Properties, "Latitude")
}

func TestLoadXLSX_ExplicitColumnsAndNumbers(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"px", "py", "rank"},
		{"1", "2", "7"},
	})

	fc, err := LoadXLSX(path, XLSXOptions{LonColumn: "px", LatColumn: "py"})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{1, 2}, fc.Features[0].Geometry)
	assert.InDelta(t, 7.0, fc.Features[0].Properties.MustFloat64("rank"), 0)

	_, err = LoadXLSX(path, XLSXOptions{})
	assert.Error(t, err)
}

func TestLoadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"lat", "lon"}})

	_, err := LoadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)

	_, err = LoadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)

	fc, err := LoadXLSX(path, XLSXOptions{SheetName: "Sites"})
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}
