package batch

import "errors"

var (
	// ErrNegativeSize is returned when a source is asked for fewer than zero units.
	ErrNegativeSize = errors.New("batch size must be non-negative")

	// ErrNilSet is recorded for a unit without a parameter set.
	ErrNilSet = errors.New("unit has no parameter set")
)

// Phase names where a unit failed.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseEngine   Phase = "engine"
	PhaseStorage  Phase = "storage"

	// PhaseCanceled marks units the batch never started.
	PhaseCanceled Phase = "canceled"
)
