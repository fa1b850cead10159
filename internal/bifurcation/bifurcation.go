// Package bifurcation spawns perturbed children from a surviving parameter
// set. Each child is an independent deep clone; only fully bounded specs are
// perturbed, and every perturbed value is clipped back into its bounds.
package bifurcation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/boshu2/rdee/internal/params"
)

const (
	// DefaultBranchingFactor is the number of children per surviving node.
	DefaultBranchingFactor = 2

	// DefaultScale is the default perturbation magnitude.
	DefaultScale = 0.05
)

// Strategy selects how a single value is perturbed.
type Strategy string

const (
	// Uniform adds δ ~ U(-s·range, +s·range) where range = max - min.
	Uniform Strategy = "uniform"

	// Gaussian multiplies by (1 + N(0, s)).
	Gaussian Strategy = "gaussian"
)

// Strategies lists the registered strategies.
func Strategies() []Strategy {
	return []Strategy{Uniform, Gaussian}
}

// ParseStrategy resolves a strategy name. Empty means Uniform.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Uniform:
		return Uniform, nil
	case Gaussian:
		return Gaussian, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Config holds branch generation settings.
type Config struct {
	BranchingFactor int      `yaml:"branching_factor" json:"branching_factor"`
	Scale           float64  `yaml:"perturbation_scale" json:"perturbation_scale"`
	Strategy        Strategy `yaml:"strategy" json:"strategy"`
}

// DefaultConfig returns k=2, s=0.05, uniform.
func DefaultConfig() Config {
	return Config{
		BranchingFactor: DefaultBranchingFactor,
		Scale:           DefaultScale,
		Strategy:        Uniform,
	}
}

// Validate reports the first configuration fault.
func (c Config) Validate() error {
	if c.BranchingFactor <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBranchingFactor, c.BranchingFactor)
	}
	if c.Scale < 0 || math.IsNaN(c.Scale) || math.IsInf(c.Scale, 0) {
		return fmt.Errorf("%w: got %g", ErrInvalidPerturbationScale, c.Scale)
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	return nil
}

// Generator produces perturbed children. It is immutable and safe for
// concurrent use.
type Generator struct {
	k        int
	scale    float64
	strategy Strategy
}

// New validates cfg and returns a Generator.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, _ := ParseStrategy(string(cfg.Strategy))
	return &Generator{k: cfg.BranchingFactor, scale: cfg.Scale, strategy: strategy}, nil
}

// BranchingFactor returns k.
func (g *Generator) BranchingFactor() int { return g.k }

// Scale returns s.
func (g *Generator) Scale() float64 { return g.scale }

// Strategy returns the perturbation strategy.
func (g *Generator) Strategy() Strategy { return g.strategy }

// Children returns k perturbed clones of parent. Child i draws from
// source(i), so each child can own an independent random stream.
func (g *Generator) Children(parent *params.Set, source func(i int) *rand.Rand) []*params.Set {
	out := make([]*params.Set, g.k)
	for i := range out {
		out[i] = g.Perturb(parent, source(i))
	}
	return out
}

// Perturb returns one perturbed deep clone of parent.
func (g *Generator) Perturb(parent *params.Set, rng *rand.Rand) *params.Set {
	child := parent.Clone()
	_ = child.Walk(func(_ string, spec *params.Spec) error {
		if !spec.Bounded() {
			return nil
		}
		spec.Value = params.Ptr(g.value(spec, rng))
		return nil
	})
	return child
}

func (g *Generator) value(spec *params.Spec, rng *rand.Rand) float64 {
	base := (*spec.Min + *spec.Max) / 2
	if spec.Value != nil {
		base = *spec.Value
	}
	var v float64
	switch g.strategy {
	case Gaussian:
		v = base * (1 + rng.NormFloat64()*g.scale)
	default:
		magnitude := spec.Range() * g.scale
		v = base + (rng.Float64()*2-1)*magnitude
	}
	return spec.Clip(v)
}
