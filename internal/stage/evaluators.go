package stage

import (
	"math"
	"math/rand/v2"

	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/survival"
)

// within reads a spec value and checks it against iv.
func within(spec *params.Spec, iv survival.Interval) (bool, error) {
	v, err := spec.Float()
	if err != nil {
		return false, err
	}
	return iv.Contains(v), nil
}

// check pairs a spec with the interval it must fall in.
type check struct {
	spec *params.Spec
	iv   survival.Interval
}

// allWithin evaluates every check, reading all values first so a missing
// value is reported even when an earlier check already failed.
func allWithin(checks ...check) (bool, error) {
	ok := true
	for _, c := range checks {
		in, err := within(c.spec, c.iv)
		if err != nil {
			return false, err
		}
		ok = ok && in
	}
	return ok, nil
}

func (r Ranges) cosmological(set *params.Set, _ *rand.Rand) (bool, error) {
	c := &set.Cosmological
	return allWithin(
		check{&c.HubbleConstant, r.HubbleConstant},
		check{&c.CosmologicalConstant, r.CosmologicalConstant},
		check{&c.BaryonToPhotonRatio, r.BaryonToPhotonRatio},
	)
}

func (r Ranges) stellar(set *params.Set, _ *rand.Rand) (bool, error) {
	s := &set.Stellar
	return allWithin(
		check{&s.Mass, r.StellarMass},
		check{&s.Metallicity, r.StellarMetallicity},
	)
}

func (r Ranges) planetary(set *params.Set, _ *rand.Rand) (bool, error) {
	p := &set.Planetary
	ok, err := allWithin(
		check{&p.Mass, r.PlanetMass},
		check{&p.Distance, r.PlanetDistance},
	)
	if err != nil {
		return false, err
	}
	n, err := p.Multiplicity.Int()
	if err != nil {
		return false, err
	}
	return ok && n >= 1, nil
}

// habitability scores the planet's distance against the liquid water zone
// with the sensitivity window, then draws against that score.
func habitability(set *params.Set, rng *rand.Rand) (bool, error) {
	ref, err := set.Planetary.Distance.Float()
	if err != nil {
		return false, err
	}
	target, err := set.Habitability.LiquidWaterZone.Float()
	if err != nil {
		return false, err
	}
	window, err := set.Sampling.SensitivityWindow.Float()
	if err != nil {
		return false, err
	}
	score, err := survival.WindowScore(ref, target, window)
	if err != nil {
		return false, err
	}
	return survival.Probabilistic(score, rng)
}

// prebiotic draws against synthesis × catalysis × (1 − polymerization failure).
func prebiotic(set *params.Set, rng *rand.Rand) (bool, error) {
	chem := &set.Prebiotic
	synth, err := chem.SynthesisProbability.Float()
	if err != nil {
		return false, err
	}
	eff, err := chem.CatalysisEfficiency.Float()
	if err != nil {
		return false, err
	}
	failure, err := chem.PolymerizationFailure.Float()
	if err != nil {
		return false, err
	}
	composite := survival.Clamp01(synth * eff * (1 - failure))
	return survival.Probabilistic(composite, rng)
}

// evolutionary requires the complexity floor, a fragility draw and an
// extinction draw. Both draws are always taken so the random stream does not
// depend on the deterministic outcome. An unset extinction frequency means
// no extinction pressure.
func (r Ranges) evolutionary(set *params.Set, rng *rand.Rand) (bool, error) {
	evo := &set.Evolutionary
	complexity, err := evo.ComplexityThreshold.Float()
	if err != nil {
		return false, err
	}
	fragility, err := evo.FragilityMultiplier.Float()
	if err != nil {
		return false, err
	}
	extinction := 0.0
	if evo.ExtinctionFrequency.HasValue() {
		extinction = *evo.ExtinctionFrequency.Value
	}

	okComplexity := complexity >= r.MinComplexity
	okFragility, err := survival.Probabilistic(survival.Clamp01(1-fragility), rng)
	if err != nil {
		return false, err
	}
	okExtinction, err := survival.Probabilistic(survival.Clamp01(math.Exp(-extinction/100)), rng)
	if err != nil {
		return false, err
	}
	return okComplexity && okFragility && okExtinction, nil
}
