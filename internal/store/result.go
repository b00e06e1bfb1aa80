package store

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/model"
)

// summarize derives the stored result and arrow-head rows from a layer.
func summarize(taskID string, layer *arrowline.Layer) (*model.TaskResult, []model.ArrowHead, error) {
	if layer == nil {
		return nil, nil, eris.New("store: nil layer")
	}

	fc, err := json.Marshal(layer.FeatureCollection())
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal layer")
	}

	result := &model.TaskResult{
		Polyline: layer.EncodedPolyline(),
		GeoJSON:  fc,
	}
	if layer.Features != nil {
		result.Features = len(layer.Features.Features)
	}

	var heads []model.ArrowHead
	if layer.ArrowHeads != nil {
		for i, f := range layer.ArrowHeads.Features {
			p, ok := f.Geometry.(orb.Point)
			if !ok {
				continue
			}
			heads = append(heads, model.ArrowHead{
				TaskID:  taskID,
				Seq:     i,
				Lon:     p.Lon(),
				Lat:     p.Lat(),
				Bearing: f.Properties.MustFloat64(arrowline.BearingProperty, 0),
			})
		}
	}
	result.ArrowHeads = len(heads)

	return result, heads, nil
}
