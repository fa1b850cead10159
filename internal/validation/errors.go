package validation

import (
	"errors"
	"strings"
)

var (
	// ErrPhysical marks a violated cross-parameter physical constraint.
	ErrPhysical = errors.New("physical constraint violated")

	// ErrSanity marks a failed sanity rule.
	ErrSanity = errors.New("sanity check failed")

	// ErrSchema marks a malformed spec: bad datatype, inverted bounds or an
	// out-of-bounds value.
	ErrSchema = errors.New("schema violation")
)

// Violation is one failed rule.
type Violation struct {
	Kind error
	Path string
	Msg  string
}

func (v *Violation) Error() string {
	if v.Path == "" {
		return v.Msg
	}
	return v.Path + ": " + v.Msg
}

// Unwrap returns the violation kind so errors.Is(err, ErrPhysical) works.
func (v *Violation) Unwrap() error {
	return v.Kind
}

// PipelineError aggregates every violation found by Validate.
type PipelineError struct {
	Errors []error
}

func (e *PipelineError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes each violation to errors.Is and errors.As.
func (e *PipelineError) Unwrap() []error {
	return e.Errors
}
