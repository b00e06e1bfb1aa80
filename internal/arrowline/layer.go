package arrowline

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"

	"github.com/sells-group/arrowline/internal/comparison"
)

// CenterMode selects how a feature geometry is reduced to a line point.
type CenterMode string

const (
	// CenterVertexMean averages every vertex (Centroid).
	CenterVertexMean CenterMode = "vertex-mean"
	// CenterBounds takes the middle of the bounding box (BoundsCenter).
	CenterBounds CenterMode = "bounds"
)

// AnchorMode selects where arrow heads are placed on their segment.
type AnchorMode string

const (
	AnchorMidpoint    AnchorMode = "midpoint"
	AnchorGreatCircle AnchorMode = "great-circle"
)

// Config is a complete arrow-line layer definition.
type Config struct {
	Sort    SortConfig        `json:"sort" yaml:"sort" mapstructure:"sort"`
	Filters []comparison.Rule `json:"filters,omitempty" yaml:"filters" mapstructure:"filters"`
	Center  CenterMode        `json:"center,omitempty" yaml:"center" mapstructure:"center"`
	Anchor  AnchorMode        `json:"anchor,omitempty" yaml:"anchor" mapstructure:"anchor"`
}

// Validate checks the whole configuration without touching any feature.
func (c Config) Validate() error {
	if err := c.Sort.Validate(); err != nil {
		return err
	}
	for _, r := range c.Filters {
		if err := r.Validate(); err != nil {
			return eris.Wrap(err, "arrowline: filter")
		}
	}
	if _, err := c.centerFunc(); err != nil {
		return err
	}
	_, err := c.anchorFunc()
	return err
}

func (c Config) centerFunc() (CenterFunc, error) {
	switch c.Center {
	case "", CenterVertexMean:
		return Centroid, nil
	case CenterBounds:
		return BoundsCenter, nil
	}
	return nil, eris.Wrapf(ErrInvalidConfig, "arrowline: unknown center mode %q", c.Center)
}

func (c Config) anchorFunc() (AnchorFunc, error) {
	switch c.Anchor {
	case "", AnchorMidpoint:
		return Midpoint, nil
	case AnchorGreatCircle:
		return GreatCircleMidpoint, nil
	}
	return nil, eris.Wrapf(ErrInvalidConfig, "arrowline: unknown anchor mode %q", c.Anchor)
}

// Layer is the result of running a feature collection through the pipeline.
type Layer struct {
	// Features are the filtered input features in line order.
	Features   *geojson.FeatureCollection `json:"features"`
	Line       orb.LineString             `json:"line"`
	ArrowHeads *geojson.FeatureCollection `json:"arrow_heads"`
}

// Build filters, sorts, reduces and decorates fc according to cfg. It does not
// modify fc.
func Build(fc *geojson.FeatureCollection, cfg Config) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	center, _ := cfg.centerFunc()
	anchor, _ := cfg.anchorFunc()

	filtered, err := comparison.Filter(fc, cfg.Filters...)
	if err != nil {
		return nil, eris.Wrap(err, "arrowline: filter features")
	}

	sorted, err := SortFeatures(filtered, cfg.Sort)
	if err != nil {
		return nil, err
	}

	line, err := BuildLineFunc(sorted, center)
	if err != nil {
		return nil, err
	}

	arrows := GenerateArrowHeadsFunc(line, anchor)

	zap.L().Debug("arrowline: built layer",
		zap.Int("input", featureCount(fc)),
		zap.Int("features", len(sorted.Features)),
		zap.Int("arrow_heads", len(arrows.Features)),
		zap.String("sort_property", cfg.Sort.Property),
	)

	return &Layer{Features: sorted, Line: line, ArrowHeads: arrows}, nil
}

// FeatureCollection renders the layer as one collection: the line first, when
// it has at least two points, followed by the arrow heads.
func (l *Layer) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(l.Line) >= 2 {
		fc.Append(geojson.NewFeature(l.Line))
	}
	if l.ArrowHeads != nil {
		fc.Features = append(fc.Features, l.ArrowHeads.Features...)
	}
	return fc
}

// EncodedPolyline returns the line in Google's encoded polyline format.
func (l *Layer) EncodedPolyline() string {
	coords := make([][]float64, len(l.Line))
	for i, p := range l.Line {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

func featureCount(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}
