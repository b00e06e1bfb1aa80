// Package export writes built arrow-line layers in interchange formats.
package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/arrowline/internal/arrowline"
)

// Output formats.
const (
	FormatGeoJSON = "geojson"
	FormatKML     = "kml"
	FormatXLSX    = "xlsx"
)

// ErrUnsupportedFormat is returned by Write for an unknown format name.
var ErrUnsupportedFormat = eris.New("export: unsupported format")

// Write encodes layer to w as format. name titles the KML document.
func Write(w io.Writer, layer *arrowline.Layer, format, name string) error {
	switch format {
	case "", FormatGeoJSON:
		return WriteGeoJSON(w, layer)
	case FormatKML:
		return WriteKML(w, layer, name)
	case FormatXLSX:
		return WriteXLSX(w, layer)
	}
	return eris.Wrapf(ErrUnsupportedFormat, "export: %q", format)
}

// WriteGeoJSON writes the layer's combined feature collection: the line
// followed by the arrow heads.
func WriteGeoJSON(w io.Writer, layer *arrowline.Layer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(layer.FeatureCollection()); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}
