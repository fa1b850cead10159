// Package params defines the parameter set consumed by the survival engine:
// seven fixed groups of named numeric specs, each with optional bounds and a
// current value.
//
// A Set is owned by exactly one engine node at a time. Branching always goes
// through Clone, so siblings never alias each other's values.
package params

import (
	"fmt"
	"math"
	"strconv"
)

// Datatype is the representation of a spec's value.
type Datatype string

const (
	DatatypeInt   Datatype = "int"
	DatatypeFloat Datatype = "float"
)

// Spec is a single named parameter with optional bounds and value.
type Spec struct {
	// Name is the human-readable parameter name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Datatype is int or float. Int values are always whole.
	Datatype Datatype `yaml:"datatype" json:"datatype" validate:"oneof=int float"`

	// Units describes the physical unit of Value.
	Units string `yaml:"units,omitempty" json:"units,omitempty"`

	// Min is the inclusive lower bound, nil when unbounded.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`

	// Max is the inclusive upper bound, nil when unbounded.
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// Value is the current value, nil when unset.
	Value *float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Ptr returns a pointer to v. Used to build optional bounds and values.
func Ptr(v float64) *float64 {
	return &v
}

// Float returns the current value or ErrMissingValue.
func (s *Spec) Float() (float64, error) {
	if s.Value == nil {
		return 0, fmt.Errorf("%s: %w", s.Name, ErrMissingValue)
	}
	return *s.Value, nil
}

// Int returns the current value as an int or ErrMissingValue.
func (s *Spec) Int() (int, error) {
	v, err := s.Float()
	if err != nil {
		return 0, err
	}
	return int(math.Round(v)), nil
}

// HasValue reports whether the spec carries a value.
func (s *Spec) HasValue() bool {
	return s.Value != nil
}

// Bounded reports whether both bounds are present.
func (s *Spec) Bounded() bool {
	return s.Min != nil && s.Max != nil
}

// Range returns max - min, or 0 when the spec is not fully bounded.
func (s *Spec) Range() float64 {
	if !s.Bounded() {
		return 0
	}
	return *s.Max - *s.Min
}

// Clip constrains v to the present bounds. Int specs are rounded after
// clipping and re-clamped to the whole-number interior of the bounds.
func (s *Spec) Clip(v float64) float64 {
	v = s.clamp(v)
	if s.Datatype == DatatypeInt {
		v = math.Round(v)
		if s.Min != nil && v < *s.Min {
			v = math.Ceil(*s.Min)
		}
		if s.Max != nil && v > *s.Max {
			v = math.Floor(*s.Max)
		}
	}
	return v
}

func (s *Spec) clamp(v float64) float64 {
	if s.Min != nil && v < *s.Min {
		v = *s.Min
	}
	if s.Max != nil && v > *s.Max {
		v = *s.Max
	}
	return v
}

// SetValue assigns v after checking datatype and bounds.
func (s *Spec) SetValue(v float64) error {
	if err := s.check(v); err != nil {
		return err
	}
	s.Value = Ptr(v)
	return nil
}

// Check verifies the spec invariant on the current value, if any.
func (s *Spec) Check() error {
	if s.Value == nil {
		return nil
	}
	return s.check(*s.Value)
}

func (s *Spec) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: non-finite value: %w", s.Name, ErrTypeMismatch)
	}
	if s.Datatype == DatatypeInt && v != math.Trunc(v) {
		return fmt.Errorf("%s: %s is not a whole number: %w", s.Name, formatFloat(v), ErrTypeMismatch)
	}
	if s.Min != nil && v < *s.Min {
		return fmt.Errorf("%s: %s below minimum %s: %w", s.Name, formatFloat(v), formatFloat(*s.Min), ErrOutOfBounds)
	}
	if s.Max != nil && v > *s.Max {
		return fmt.Errorf("%s: %s above maximum %s: %w", s.Name, formatFloat(v), formatFloat(*s.Max), ErrOutOfBounds)
	}
	return nil
}

// clone returns a copy that shares no pointers with s.
func (s Spec) clone() Spec {
	out := s
	out.Min = clonePtr(s.Min)
	out.Max = clonePtr(s.Max)
	out.Value = clonePtr(s.Value)
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
