package source

import (
	"encoding/json"
	"io"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// LoadGeoJSON reads a GeoJSON file. See ParseGeoJSON.
func LoadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	return ParseGeoJSON(data)
}

// ReadGeoJSON is ParseGeoJSON over a reader.
func ReadGeoJSON(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "source: read geojson")
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON decodes a FeatureCollection, a single Feature or a bare
// geometry. The latter two are wrapped in a one-feature collection.
func ParseGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "source: decode geojson")
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, eris.Wrap(err, "source: decode feature collection")
		}
		return fc, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, eris.Wrap(err, "source: decode feature")
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil

	case "":
		return nil, eris.New("source: geojson object has no type")

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, eris.Wrapf(err, "source: decode %s geometry", head.Type)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		return fc, nil
	}
}
