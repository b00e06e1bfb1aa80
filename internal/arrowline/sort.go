package arrowline

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// SortOrder is the direction of a feature sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// PropertyType selects how sort keys are compared.
type PropertyType string

const (
	PropertyNumber   PropertyType = "number"
	PropertyString   PropertyType = "string"
	PropertyDateTime PropertyType = "date_time"
)

// SortConfig describes how features are ordered before the line is built.
// The zero value sorts ascending by number on an empty property name, which
// leaves every feature where it is.
type SortConfig struct {
	Property       string       `json:"property" yaml:"property" mapstructure:"property"`
	Order          SortOrder    `json:"order" yaml:"order" mapstructure:"order"`
	Type           PropertyType `json:"type" yaml:"type" mapstructure:"type"`
	DateTimeFormat string       `json:"date_time_format,omitempty" yaml:"date_time_format" mapstructure:"date_time_format"`
}

// Normalize lower-cases the order and type and fills their defaults, so
// "DESC" and "DATE_TIME" are accepted as well.
func (c SortConfig) Normalize() SortConfig {
	c.Order = SortOrder(strings.ToLower(strings.TrimSpace(string(c.Order))))
	c.Type = PropertyType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	if c.Order == "" {
		c.Order = SortAsc
	}
	if c.Type == "" {
		c.Type = PropertyNumber
	}
	if c.Type == "datetime" || c.Type == "date-time" {
		c.Type = PropertyDateTime
	}
	return c
}

// Validate reports configuration errors before any feature is processed.
func (c SortConfig) Validate() error {
	c = c.Normalize()

	switch c.Order {
	case SortAsc, SortDesc:
	default:
		return eris.Wrapf(ErrInvalidSortConfig, "arrowline: unknown sort order %q", c.Order)
	}

	switch c.Type {
	case PropertyNumber, PropertyString:
		return nil
	case PropertyDateTime:
		if c.DateTimeFormat == "" {
			return ErrMissingDateTimeFormat
		}
		_, err := dateTimeLayout(c.DateTimeFormat)
		return err
	default:
		return eris.Wrapf(ErrInvalidSortConfig, "arrowline: unknown property type %q", c.Type)
	}
}

// SortFeatures returns a new collection holding the features of fc ordered by
// cfg. The sort is stable under both orders: features with equal keys keep
// their input order. A feature without the property sorts as the smallest
// value. Every key is read before anything is reordered, so a value that
// fails to parse returns an error and no collection.
func SortFeatures(fc *geojson.FeatureCollection, cfg SortConfig) (*geojson.FeatureCollection, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var layout string
	if cfg.Type == PropertyDateTime {
		// Validated above.
		layout, _ = dateTimeLayout(cfg.DateTimeFormat)
	}

	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out, nil
	}
	out.BBox = fc.BBox

	items := make([]keyedFeature, len(fc.Features))
	for i, f := range fc.Features {
		key, err := extractKey(f, cfg, layout)
		if err != nil {
			return nil, eris.Wrapf(err, "arrowline: sort feature %d", i)
		}
		items[i] = keyedFeature{feature: f, key: key}
	}

	slices.SortStableFunc(items, func(a, b keyedFeature) int {
		c := compareKeys(cfg.Type, a.key, b.key)
		if cfg.Order == SortDesc {
			return -c
		}
		return c
	})

	out.Features = make([]*geojson.Feature, len(items))
	for i, it := range items {
		out.Features[i] = it.feature
	}
	return out, nil
}

type keyedFeature struct {
	feature *geojson.Feature
	key     sortKey
}

type sortKey struct {
	present bool
	num     float64
	str     string
	at      time.Time
}

func extractKey(f *geojson.Feature, cfg SortConfig, layout string) (sortKey, error) {
	if f == nil {
		return sortKey{}, nil
	}
	v, ok := f.Properties[cfg.Property]
	if !ok || v == nil {
		return sortKey{}, nil
	}

	switch cfg.Type {
	case PropertyNumber:
		n, ok := toFloat(v)
		if !ok {
			return sortKey{}, nil
		}
		return sortKey{present: true, num: n}, nil

	case PropertyString:
		s, ok := v.(string)
		if !ok {
			return sortKey{}, nil
		}
		return sortKey{present: true, str: s}, nil

	case PropertyDateTime:
		s, ok := v.(string)
		if !ok {
			return sortKey{}, eris.Wrapf(ErrInvalidDateTimeFormat, "arrowline: property %q holds %T, not a string", cfg.Property, v)
		}
		at, err := time.Parse(layout, s)
		if err != nil {
			return sortKey{}, eris.Wrapf(ErrInvalidDateTimeFormat, "arrowline: %q does not match %q", s, cfg.DateTimeFormat)
		}
		return sortKey{present: true, at: at}, nil
	}

	return sortKey{}, nil
}

// compareKeys orders missing keys before present ones.
func compareKeys(typ PropertyType, a, b sortKey) int {
	if a.present != b.present {
		if !a.present {
			return -1
		}
		return 1
	}
	if !a.present {
		return 0
	}

	switch typ {
	case PropertyNumber:
		return cmp.Compare(a.num, b.num)
	case PropertyString:
		return strings.Compare(a.str, b.str)
	case PropertyDateTime:
		return a.at.Compare(b.at)
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
