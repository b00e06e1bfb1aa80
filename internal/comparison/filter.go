package comparison

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// ErrInvalidRule is returned for a rule without a property or with an
// unknown value type.
var ErrInvalidRule = eris.New("comparison: invalid rule")

// Rule keeps features whose Property compares to Value under Function.
type Rule struct {
	Property string `json:"property" yaml:"property" mapstructure:"property"`
	Function string `json:"function" yaml:"function" mapstructure:"function"`
	Type     string `json:"type" yaml:"type" mapstructure:"type"`
	Value    string `json:"value" yaml:"value" mapstructure:"value"`
}

// Validate checks the rule's function name and value type.
func (r Rule) Validate() error {
	if r.Property == "" {
		return eris.Wrap(ErrInvalidRule, "comparison: rule has no property")
	}
	if _, err := Lookup(r.Function); err != nil {
		return err
	}
	switch strings.ToLower(r.Type) {
	case TypeString, TypeNumber:
		return nil
	}
	return eris.Wrapf(ErrInvalidRule, "comparison: rule on %q has unknown type %q", r.Property, r.Type)
}

// Match reports whether f satisfies the rule. A feature without the
// property never matches.
func (r Rule) Match(f *geojson.Feature) (bool, error) {
	c, err := Lookup(r.Function)
	if err != nil {
		return false, err
	}
	if f == nil {
		return false, nil
	}
	v, ok := f.Properties[r.Property]
	if !ok || v == nil {
		return false, nil
	}
	return c.Compare(text(v), r.Type, r.Value), nil
}

// Filter returns a new collection with the features of fc that satisfy every
// rule, in their original order. With no rules every feature is kept.
func Filter(fc *geojson.FeatureCollection, rules ...Rule) (*geojson.FeatureCollection, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out, nil
	}

	for _, f := range fc.Features {
		keep := true
		for _, r := range rules {
			ok, err := r.Match(f)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out.Append(f)
		}
	}
	return out, nil
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
