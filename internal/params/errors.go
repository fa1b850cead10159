package params

import "errors"

// Sentinel errors for the params package. Callers match with errors.Is.
var (
	// ErrMissingValue is returned when a spec has no current value.
	ErrMissingValue = errors.New("parameter value is missing")

	// ErrUnknownPath is returned when a dot path does not name a spec or group.
	ErrUnknownPath = errors.New("unknown parameter path")

	// ErrTypeMismatch is returned when a value does not fit the spec datatype.
	ErrTypeMismatch = errors.New("parameter type mismatch")

	// ErrOutOfBounds is returned when a value falls outside [min, max].
	ErrOutOfBounds = errors.New("parameter value out of bounds")

	// ErrUnsupportedFormat is returned for parameter files that are neither YAML nor JSON.
	ErrUnsupportedFormat = errors.New("unsupported parameter file format")

	// ErrGridTooLarge is returned when a sweep expands past MaxGridPoints.
	ErrGridTooLarge = errors.New("sweep grid too large")
)
