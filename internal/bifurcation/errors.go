package bifurcation

import "errors"

var (
	// ErrInvalidBranchingFactor is returned when k is not positive.
	ErrInvalidBranchingFactor = errors.New("branching factor must be positive")

	// ErrInvalidPerturbationScale is returned when the scale is negative or not finite.
	ErrInvalidPerturbationScale = errors.New("perturbation scale must be a non-negative finite number")

	// ErrUnknownStrategy is returned for a strategy name that is not registered.
	ErrUnknownStrategy = errors.New("unknown perturbation strategy")
)
