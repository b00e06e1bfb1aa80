// Package arrowline reduces feature collections to a directed line decorated
// with arrow-head markers: per-feature center points, property-ordered
// features, the line joining them and one bearing-carrying marker per segment.
package arrowline

import "github.com/rotisserie/eris"

var (
	// ErrUnsupportedGeometryKind is returned when a geometry other than a
	// Point, LineString, Polygon or MultiPolygon is reduced to a point.
	ErrUnsupportedGeometryKind = eris.New("arrowline: unsupported geometry kind")

	// ErrEmptyGeometry is returned when a geometry has no vertices at all.
	ErrEmptyGeometry = eris.New("arrowline: geometry has no vertices")

	// ErrMissingDateTimeFormat is returned by SortConfig.Validate when a
	// date_time sort has no format configured.
	ErrMissingDateTimeFormat = eris.New("arrowline: date time format for sort configuration on a date_time property has not been set")

	// ErrInvalidDateTimeFormat is returned when a feature's date-time value
	// does not parse with the configured format.
	ErrInvalidDateTimeFormat = eris.New("arrowline: date time value does not match format")

	// ErrInvalidDateTimePattern is returned when the configured date-time
	// format cannot be understood.
	ErrInvalidDateTimePattern = eris.New("arrowline: invalid date time pattern")

	// ErrInvalidSortConfig is returned for an unknown sort order or property type.
	ErrInvalidSortConfig = eris.New("arrowline: invalid sort configuration")

	// ErrInvalidConfig is returned for an unknown center or anchor mode.
	ErrInvalidConfig = eris.New("arrowline: invalid layer configuration")
)
