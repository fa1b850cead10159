// Package survival provides the generic filter primitives the stage
// evaluators are built from: inclusive range checks, a proximity window and
// probability draws against an explicit random source.
package survival

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrProbabilityRange is returned for probabilities outside [0, 1].
	ErrProbabilityRange = errors.New("probability must be within [0, 1]")

	// ErrNegativeWindow is returned for a negative window ratio.
	ErrNegativeWindow = errors.New("window ratio must be non-negative")
)

// Interval is an inclusive numeric range. Nil bounds are open.
type Interval struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Between returns the closed interval [min, max].
func Between(min, max float64) Interval {
	return Interval{Min: &min, Max: &max}
}

// Contains reports whether v lies in the interval.
func (i Interval) Contains(v float64) bool {
	return ThresholdPass(v, i.Min, i.Max)
}

// String renders the interval as [min, max].
func (i Interval) String() string {
	lo, hi := "-inf", "+inf"
	if i.Min != nil {
		lo = fmt.Sprintf("%g", *i.Min)
	}
	if i.Max != nil {
		hi = fmt.Sprintf("%g", *i.Max)
	}
	return "[" + lo + ", " + hi + "]"
}

// ThresholdPass reports whether v satisfies the optional inclusive bounds.
func ThresholdPass(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

// WindowScore returns 1 when target lies within reference·(1∓ratio) and 0
// otherwise. The score is used directly as a survival probability.
func WindowScore(reference, target, ratio float64) (float64, error) {
	if ratio < 0 {
		return 0, ErrNegativeWindow
	}
	lower := reference * (1 - ratio)
	upper := reference * (1 + ratio)
	if lower > upper {
		lower, upper = upper, lower
	}
	if lower <= target && target <= upper {
		return 1, nil
	}
	return 0, nil
}

// Clamp01 constrains p to [0, 1].
func Clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// Probabilistic draws once from rng and survives when the draw is below p.
// A p of 1 always survives; a p of 0 never does.
func Probabilistic(p float64, rng *rand.Rand) (bool, error) {
	if p < 0 || p > 1 {
		return false, fmt.Errorf("%g: %w", p, ErrProbabilityRange)
	}
	return rng.Float64() < p, nil
}
