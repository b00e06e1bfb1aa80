// Package source loads feature collections from the file formats arrow-line
// layers are built from.
package source

import (
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// ErrUnsupportedFormat is returned by Load for an unknown file extension.
var ErrUnsupportedFormat = eris.New("source: unsupported file format")

// Format names accepted by LoadFormat.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
	FormatXLSX      = "xlsx"
)

// DetectFormat maps a file extension to a format name.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp":
		return FormatShapefile, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Wrapf(ErrUnsupportedFormat, "source: %s", path)
}

// Load reads path using the loader chosen by its extension.
func Load(path string) (*geojson.FeatureCollection, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	return LoadFormat(path, format)
}

// LoadFormat reads path as the named format. XLSX files use the default
// options.
func LoadFormat(path, format string) (*geojson.FeatureCollection, error) {
	switch format {
	case FormatGeoJSON:
		return LoadGeoJSON(path)
	case FormatShapefile:
		return LoadShapefile(path)
	case FormatXLSX:
		return LoadXLSX(path, XLSXOptions{})
	}
	return nil, eris.Wrapf(ErrUnsupportedFormat, "source: format %q", format)
}
