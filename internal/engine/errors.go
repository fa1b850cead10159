package engine

import "errors"

var (
	// ErrInvalidDepthLimit is returned when the depth limit is missing or not positive.
	ErrInvalidDepthLimit = errors.New("recursive depth limit must be a positive integer")

	// ErrNodeBudgetExceeded is returned when a run would evaluate more nodes than allowed.
	ErrNodeBudgetExceeded = errors.New("node budget exceeded")

	// ErrNilParameters is returned when Run is given no parameter set.
	ErrNilParameters = errors.New("parameter set is nil")
)
