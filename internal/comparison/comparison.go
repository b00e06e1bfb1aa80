// Package comparison evaluates property rules against features so that a
// feature collection can be narrowed before it is turned into a line.
package comparison

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Value types understood by every Comparison.
const (
	TypeString = "string"
	TypeNumber = "number"
)

// ErrUnknownFunction is returned by Lookup for an unregistered function name.
var ErrUnknownFunction = eris.New("comparison: unknown function")

// Comparison tests a feature value a against a rule value b, both given as
// text and interpreted according to typ.
type Comparison interface {
	Compare(a, typ, b string) bool
	FunctionName() string
}

var registry = map[string]Comparison{}

func register(c Comparison) {
	registry[c.FunctionName()] = c
}

func init() {
	register(equalTo{})
	register(notEqualTo{})
	register(greaterThan{})
	register(lessThan{})
}

// Lookup returns the comparison registered under name.
func Lookup(name string) (Comparison, error) {
	c, ok := registry[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownFunction, "comparison: %q", name)
	}
	return c, nil
}

// Functions lists the registered function names.
func Functions() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// order compares a and b as typ and reports whether they were comparable.
func order(a, typ, b string) (int, bool) {
	switch strings.ToLower(typ) {
	case TypeString:
		return strings.Compare(a, b), true
	case TypeNumber:
		x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return 0, false
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
		if err != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		case x == y:
			return 0, true
		}
	}
	return 0, false
}

type equalTo struct{}

func (equalTo) FunctionName() string { return "equalTo" }

func (equalTo) Compare(a, typ, b string) bool {
	c, ok := order(a, typ, b)
	return ok && c == 0
}

type notEqualTo struct{}

func (notEqualTo) FunctionName() string { return "notEqualTo" }

func (notEqualTo) Compare(a, typ, b string) bool {
	c, ok := order(a, typ, b)
	return ok && c != 0
}

type greaterThan struct{}

func (greaterThan) FunctionName() string { return "greaterThan" }

func (greaterThan) Compare(a, typ, b string) bool {
	c, ok := order(a, typ, b)
	return ok && c > 0
}

type lessThan struct{}

func (lessThan) FunctionName() string { return "lessThan" }

func (lessThan) Compare(a, typ, b string) bool {
	c, ok := order(a, typ, b)
	return ok && c < 0
}
