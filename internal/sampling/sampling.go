// Package sampling draws initial parameter sets for batch runs.
package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/survival"
)

// ErrUnknownSampler is returned by Parse for an unregistered sampler name.
var ErrUnknownSampler = errors.New("unknown sampler")

// Func draws one parameter set from rng.
type Func func(rng *rand.Rand) (*params.Set, error)

// Parse returns the named sampler. "uniform" samples the default schema
// bounds, narrowed by overrides; "natural" uses physically motivated
// distributions and ignores overrides.
func Parse(name string, overrides map[string]survival.Interval) (Func, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "uniform":
		return func(rng *rand.Rand) (*params.Set, error) {
			return Uniform(rng, nil, overrides)
		}, nil
	case "natural":
		return func(rng *rand.Rand) (*params.Set, error) {
			return Natural(rng), nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSampler, name)
}

// Uniform returns a clone of base (the default schema when nil) with every
// fully bounded spec drawn uniformly from its bounds. Int specs are drawn
// from the whole numbers inside the bounds, both ends inclusive. Overrides
// replace the bounds of the addressed specs before drawing; a nil side
// keeps the existing bound. Unbounded specs keep their value.
func Uniform(rng *rand.Rand, base *params.Set, overrides map[string]survival.Interval) (*params.Set, error) {
	if base == nil {
		base = params.Default()
	}
	set := base.Clone()
	for path, iv := range overrides {
		spec, err := set.Lookup(path)
		if err != nil {
			return nil, err
		}
		if iv.Min != nil {
			spec.Min = params.Ptr(*iv.Min)
		}
		if iv.Max != nil {
			spec.Max = params.Ptr(*iv.Max)
		}
		if spec.Bounded() && *spec.Min > *spec.Max {
			return nil, fmt.Errorf("%s: min %g above max %g: %w", path, *spec.Min, *spec.Max, params.ErrOutOfBounds)
		}
	}

	err := set.Walk(func(path string, spec *params.Spec) error {
		if !spec.Bounded() {
			return nil
		}
		if spec.Datatype == params.DatatypeInt {
			lo, hi := math.Ceil(*spec.Min), math.Floor(*spec.Max)
			if lo > hi {
				return fmt.Errorf("%s: no whole number in [%g, %g]: %w", path, *spec.Min, *spec.Max, params.ErrOutOfBounds)
			}
			spec.Value = params.Ptr(lo + float64(rng.IntN(int(hi-lo)+1)))
			return nil
		}
		spec.Value = params.Ptr(*spec.Min + rng.Float64()*spec.Range())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Natural returns a default-schema set with values drawn from physically
// motivated distributions, each clipped into the spec bounds.
func Natural(rng *rand.Rand) *params.Set {
	s := params.Default()
	assign := func(spec *params.Spec, v float64) {
		spec.Value = params.Ptr(spec.Clip(v))
	}

	assign(&s.Cosmological.HubbleConstant, distuv.Normal{Mu: 70, Sigma: 1.5, Src: rng}.Rand())
	assign(&s.Cosmological.CosmologicalConstant, distuv.LogNormal{Mu: math.Log(1e-54), Sigma: 0.1, Src: rng}.Rand())
	assign(&s.Cosmological.BaryonToPhotonRatio, distuv.Normal{Mu: 6e-10, Sigma: 5e-11, Src: rng}.Rand())

	assign(&s.Stellar.Mass, distuv.LogNormal{Mu: 0, Sigma: 0.1, Src: rng}.Rand())
	assign(&s.Stellar.Metallicity, distuv.Beta{Alpha: 2, Beta: 5, Src: rng}.Rand()*(0.03-0.0001)+0.0001)

	assign(&s.Planetary.Mass, distuv.LogNormal{Mu: 0, Sigma: 0.3, Src: rng}.Rand())
	assign(&s.Planetary.Distance, distuv.Uniform{Min: 0.8, Max: 1.5, Src: rng}.Rand())
	assign(&s.Planetary.Multiplicity, distuv.Poisson{Lambda: 3, Src: rng}.Rand())

	assign(&s.Habitability.LiquidWaterZone, distuv.Uniform{Min: 0.95, Max: 1.37, Src: rng}.Rand())
	assign(&s.Habitability.StellarUVFlux, distuv.Normal{Mu: 1361, Sigma: 50, Src: rng}.Rand())
	assign(&s.Habitability.TidalLocking, rng.Float64())

	assign(&s.Prebiotic.SynthesisProbability, distuv.Beta{Alpha: 5, Beta: 3, Src: rng}.Rand())
	assign(&s.Prebiotic.CatalysisEfficiency, distuv.Beta{Alpha: 3, Beta: 3, Src: rng}.Rand())
	assign(&s.Prebiotic.PolymerizationFailure, distuv.Beta{Alpha: 2, Beta: 5, Src: rng}.Rand())

	assign(&s.Evolutionary.ComplexityThreshold, float64(3+rng.IntN(5)))
	assign(&s.Evolutionary.FragilityMultiplier, distuv.Beta{Alpha: 4, Beta: 3, Src: rng}.Rand())
	assign(&s.Evolutionary.ExtinctionFrequency, distuv.Exponential{Rate: 2, Src: rng}.Rand())

	assign(&s.Sampling.DepthLimit, 10)
	assign(&s.Sampling.SensitivityWindow, distuv.Uniform{Min: 0.05, Max: 0.2, Src: rng}.Rand())

	return s
}

// Draw returns n sets from fn. Sample i draws from its own stream derived
// from seed, so a sample does not depend on how many came before it.
func Draw(n int, seed uint64, fn Func) ([]*params.Set, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample count must be non-negative, got %d", n)
	}
	out := make([]*params.Set, n)
	for i := range out {
		set, err := fn(rand.New(rand.NewPCG(seed, uint64(i))))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = set
	}
	return out, nil
}
