package export

import (
	"fmt"
	"image/color"
	"io"

	"github.com/rotisserie/eris"
	kml "github.com/twpayne/go-kml"

	"github.com/sells-group/arrowline/internal/arrowline"
)

var lineColor = color.RGBA{R: 0x1f, G: 0x78, B: 0xb4, A: 0xff}

// WriteKML writes the layer as a KML document. The line is one placemark and
// every arrow head is a point placemark whose icon heading is its bearing.
func WriteKML(w io.Writer, layer *arrowline.Layer, name string) error {
	if name == "" {
		name = "arrow line"
	}

	doc := kml.Document(kml.Name(name))

	if len(layer.Line) >= 2 {
		coords := make([]kml.Coordinate, len(layer.Line))
		for i, p := range layer.Line {
			coords[i] = kml.Coordinate{Lon: p.Lon(), Lat: p.Lat()}
		}
		doc.Add(kml.Placemark(
			kml.Name(name),
			kml.Style(
				kml.LineStyle(
					kml.Color(lineColor),
					kml.Width(3),
				),
			),
			kml.LineString(kml.Coordinates(coords...)),
		))
	}

	if layer.ArrowHeads != nil {
		for i, f := range layer.ArrowHeads.Features {
			p, ok := pointOf(f.Geometry)
			if !ok {
				continue
			}
			bearing := f.Properties.MustFloat64(arrowline.BearingProperty, 0)
			doc.Add(kml.Placemark(
				kml.Name(fmt.Sprintf("arrow %d", i+1)),
				kml.Description(fmt.Sprintf("%s: %.4f", arrowline.BearingProperty, bearing)),
				kml.Style(
					kml.IconStyle(
						kml.Heading(bearing),
					),
				),
				kml.Point(kml.Coordinates(kml.Coordinate{Lon: p.Lon(), Lat: p.Lat()})),
			))
		}
	}

	if err := kml.KML(doc).WriteIndent(w, "", "  "); err != nil {
		return eris.Wrap(err, "export: write kml")
	}
	return nil
}
