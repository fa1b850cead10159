// Package stage implements the six ordered viability filters a parameter set
// must survive. Stages run in a fixed order; earlier stages gate later ones
// and evaluation stops at the first failure.
package stage

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/boshu2/rdee/internal/params"
)

// Name identifies a stage.
type Name string

const (
	Cosmological Name = "cosmological"
	Stellar      Name = "stellar"
	Planetary    Name = "planetary"
	Habitability Name = "habitability"
	Prebiotic    Name = "prebiotic"
	Evolutionary Name = "evolutionary"
)

// All returns every stage in evaluation order.
func All() []Name {
	return []Name{
		Cosmological,
		Stellar,
		Planetary,
		Habitability,
		Prebiotic,
		Evolutionary,
	}
}

// ParseName normalizes a stage name. Returns "" if it is not recognized.
func ParseName(s string) Name {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All() {
		if n == known {
			return n
		}
	}
	return ""
}

// Evaluator answers whether a parameter set survives one filter. A non-nil
// error is an evaluator fault; the pipeline records it as a failure.
type Evaluator func(set *params.Set, rng *rand.Rand) (bool, error)

// Stage pairs a name with its evaluator.
type Stage struct {
	Name Name
	Eval Evaluator
}

// Recorder receives one call per attempted stage, in order.
type Recorder func(name Name, survived bool, fault error)

// Pipeline is the ordered stage set.
type Pipeline struct {
	stages []Stage
}

// NewPipeline builds the six stages against the given survival intervals.
func NewPipeline(r Ranges) *Pipeline {
	evaluators := map[Name]Evaluator{
		Cosmological: r.cosmological,
		Stellar:      r.stellar,
		Planetary:    r.planetary,
		Habitability: habitability,
		Prebiotic:    prebiotic,
		Evolutionary: r.evolutionary,
	}
	p := &Pipeline{}
	for _, name := range All() {
		p.stages = append(p.stages, Stage{Name: name, Eval: evaluators[name]})
	}
	return p
}

// NewCustomPipeline builds a pipeline from caller-provided stages, run in the
// given order.
func NewCustomPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Run evaluates each stage in order, reporting every attempt to rec, and
// stops at the first failure. It returns the surviving verdict and the name
// of the collapsing stage, if any.
func (p *Pipeline) Run(set *params.Set, rng *rand.Rand, rec Recorder) (bool, Name) {
	for _, s := range p.stages {
		ok, fault := Evaluate(s, set, rng)
		if rec != nil {
			rec(s.Name, ok, fault)
		}
		if !ok {
			return false, s.Name
		}
	}
	return true, ""
}

// Evaluate runs one stage fail-closed: an error or panic from the evaluator
// becomes a failure, returned alongside as the fault.
func Evaluate(s Stage, set *params.Set, rng *rand.Rand) (ok bool, fault error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			fault = fmt.Errorf("stage %s panicked: %v", s.Name, r)
		}
	}()
	ok, err := s.Eval(set, rng)
	if err != nil {
		return false, fmt.Errorf("stage %s: %w", s.Name, err)
	}
	return ok, nil
}
