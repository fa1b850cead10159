package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boshu2/rdee/internal/survival"
)

// Ranges holds the fixed survival intervals of the deterministic checks.
// These are narrower than the schema bounds: a value can be a valid
// parameter and still fall outside the survival corridor.
type Ranges struct {
	HubbleConstant       survival.Interval
	CosmologicalConstant survival.Interval
	BaryonToPhotonRatio  survival.Interval
	StellarMass          survival.Interval
	StellarMetallicity   survival.Interval
	PlanetMass           survival.Interval
	PlanetDistance       survival.Interval

	// MinComplexity is the inclusive evolutionary complexity floor.
	MinComplexity float64
}

// DefaultRanges returns the standard survival corridor.
func DefaultRanges() Ranges {
	return Ranges{
		HubbleConstant:       survival.Between(60, 75),
		CosmologicalConstant: survival.Between(1e-56, 1e-52),
		BaryonToPhotonRatio:  survival.Between(1e-10, 1e-9),
		StellarMass:          survival.Between(0.5, 1.5),
		StellarMetallicity:   survival.Between(0.001, 0.03),
		PlanetMass:           survival.Between(0.5, 5),
		PlanetDistance:       survival.Between(0.7, 2),
		MinComplexity:        3,
	}
}

// intervals maps override keys to the interval they replace.
func (r *Ranges) intervals() map[string]*survival.Interval {
	return map[string]*survival.Interval{
		"hubble_constant":        &r.HubbleConstant,
		"cosmological_constant":  &r.CosmologicalConstant,
		"baryon_to_photon_ratio": &r.BaryonToPhotonRatio,
		"stellar_mass":           &r.StellarMass,
		"stellar_metallicity":    &r.StellarMetallicity,
		"planet_mass":            &r.PlanetMass,
		"planet_distance":        &r.PlanetDistance,
	}
}

// Keys returns the override keys accepted by Apply.
func (r Ranges) Keys() []string {
	m := r.intervals()
	keys := make([]string, 0, len(m)+1)
	for k := range m {
		keys = append(keys, k)
	}
	keys = append(keys, "evolutionary_complexity_threshold")
	sort.Strings(keys)
	return keys
}

// Apply replaces intervals by key. Only the bounds present in an override
// are replaced. The complexity floor reads the override's min.
func (r Ranges) Apply(overrides map[string]survival.Interval) (Ranges, error) {
	out := r
	targets := out.intervals()
	for key, iv := range overrides {
		if key == "evolutionary_complexity_threshold" {
			if iv.Min != nil {
				out.MinComplexity = *iv.Min
			}
			continue
		}
		dst, ok := targets[key]
		if !ok {
			return r, fmt.Errorf("unknown survival range %q (known: %s)", key, strings.Join(r.Keys(), ", "))
		}
		if iv.Min != nil {
			v := *iv.Min
			dst.Min = &v
		}
		if iv.Max != nil {
			v := *iv.Max
			dst.Max = &v
		}
	}
	return out, nil
}
