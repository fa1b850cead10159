package params

import (
	"fmt"
	"strings"
)

// Cosmological holds universe-level constants.
type Cosmological struct {
	HubbleConstant       Spec `yaml:"hubble_constant" json:"hubble_constant"`
	CosmologicalConstant Spec `yaml:"cosmological_constant" json:"cosmological_constant"`
	BaryonToPhotonRatio  Spec `yaml:"baryon_to_photon_ratio" json:"baryon_to_photon_ratio"`
}

// Stellar holds host-star formation variables.
type Stellar struct {
	Metallicity Spec `yaml:"stellar_metallicity" json:"stellar_metallicity"`
	Mass        Spec `yaml:"stellar_mass" json:"stellar_mass"`
}

// Planetary holds initial planet formation variables.
type Planetary struct {
	Mass         Spec `yaml:"planet_mass" json:"planet_mass"`
	Distance     Spec `yaml:"planet_distance" json:"planet_distance"`
	Multiplicity Spec `yaml:"planetary_system_multiplicity" json:"planetary_system_multiplicity"`
}

// Habitability holds variables determining planetary habitability.
type Habitability struct {
	LiquidWaterZone Spec `yaml:"liquid_water_zone_range" json:"liquid_water_zone_range"`
	StellarUVFlux   Spec `yaml:"stellar_uv_flux_range" json:"stellar_uv_flux_range"`
	TidalLocking    Spec `yaml:"tidal_locking_probability" json:"tidal_locking_probability"`
}

// Prebiotic holds chemical probabilities for prebiotic reactions.
type Prebiotic struct {
	SynthesisProbability  Spec `yaml:"prebiotic_synthesis_success_probability" json:"prebiotic_synthesis_success_probability"`
	CatalysisEfficiency   Spec `yaml:"uv_catalysis_efficiency" json:"uv_catalysis_efficiency"`
	PolymerizationFailure Spec `yaml:"polymerization_failure_rate" json:"polymerization_failure_rate"`
}

// Evolutionary holds parameters of evolutionary processes.
type Evolutionary struct {
	ComplexityThreshold Spec `yaml:"evolutionary_complexity_threshold" json:"evolutionary_complexity_threshold"`
	FragilityMultiplier Spec `yaml:"evolutionary_fragility_multiplier" json:"evolutionary_fragility_multiplier"`
	ExtinctionFrequency Spec `yaml:"mass_extinction_frequency" json:"mass_extinction_frequency"`
}

// Sampling holds recursion control parameters.
type Sampling struct {
	DepthLimit        Spec `yaml:"recursive_depth_limit" json:"recursive_depth_limit"`
	SensitivityWindow Spec `yaml:"survival_corridor_sensitivity_window" json:"survival_corridor_sensitivity_window"`
}

// Set is the full parameter tree.
type Set struct {
	Cosmological Cosmological `yaml:"cosmological" json:"cosmological"`
	Stellar      Stellar      `yaml:"stellar" json:"stellar"`
	Planetary    Planetary    `yaml:"planetary" json:"planetary"`
	Habitability Habitability `yaml:"habitability" json:"habitability"`
	Prebiotic    Prebiotic    `yaml:"prebiotic" json:"prebiotic"`
	Evolutionary Evolutionary `yaml:"evolutionary" json:"evolutionary"`
	Sampling     Sampling     `yaml:"sampling" json:"sampling"`
}

// field binds a dot path to the spec it addresses.
type field struct {
	path string
	spec func(*Set) *Spec
}

// fields lists every spec in walk order. Order matters: perturbation draws
// consume the random source in this order.
var fields = []field{
	{"cosmological.hubble_constant", func(s *Set) *Spec { return &s.Cosmological.HubbleConstant }},
	{"cosmological.cosmological_constant", func(s *Set) *Spec { return &s.Cosmological.CosmologicalConstant }},
	{"cosmological.baryon_to_photon_ratio", func(s *Set) *Spec { return &s.Cosmological.BaryonToPhotonRatio }},
	{"stellar.stellar_metallicity", func(s *Set) *Spec { return &s.Stellar.Metallicity }},
	{"stellar.stellar_mass", func(s *Set) *Spec { return &s.Stellar.Mass }},
	{"planetary.planet_mass", func(s *Set) *Spec { return &s.Planetary.Mass }},
	{"planetary.planet_distance", func(s *Set) *Spec { return &s.Planetary.Distance }},
	{"planetary.planetary_system_multiplicity", func(s *Set) *Spec { return &s.Planetary.Multiplicity }},
	{"habitability.liquid_water_zone_range", func(s *Set) *Spec { return &s.Habitability.LiquidWaterZone }},
	{"habitability.stellar_uv_flux_range", func(s *Set) *Spec { return &s.Habitability.StellarUVFlux }},
	{"habitability.tidal_locking_probability", func(s *Set) *Spec { return &s.Habitability.TidalLocking }},
	{"prebiotic.prebiotic_synthesis_success_probability", func(s *Set) *Spec { return &s.Prebiotic.SynthesisProbability }},
	{"prebiotic.uv_catalysis_efficiency", func(s *Set) *Spec { return &s.Prebiotic.CatalysisEfficiency }},
	{"prebiotic.polymerization_failure_rate", func(s *Set) *Spec { return &s.Prebiotic.PolymerizationFailure }},
	{"evolutionary.evolutionary_complexity_threshold", func(s *Set) *Spec { return &s.Evolutionary.ComplexityThreshold }},
	{"evolutionary.evolutionary_fragility_multiplier", func(s *Set) *Spec { return &s.Evolutionary.FragilityMultiplier }},
	{"evolutionary.mass_extinction_frequency", func(s *Set) *Spec { return &s.Evolutionary.ExtinctionFrequency }},
	{"sampling.recursive_depth_limit", func(s *Set) *Spec { return &s.Sampling.DepthLimit }},
	{"sampling.survival_corridor_sensitivity_window", func(s *Set) *Spec { return &s.Sampling.SensitivityWindow }},
}

// fieldIndex maps a dot path to its position in fields.
var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(fields))
	for i, f := range fields {
		m[f.path] = i
	}
	return m
}()

// Paths returns every spec path in walk order.
func Paths() []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.path
	}
	return out
}

// Clone returns a deep copy of s.
func (s *Set) Clone() *Set {
	out := &Set{}
	for _, f := range fields {
		*f.spec(out) = f.spec(s).clone()
	}
	return out
}

// Walk calls fn for every spec in walk order and stops at the first error.
func (s *Set) Walk(fn func(path string, spec *Spec) error) error {
	for _, f := range fields {
		if err := fn(f.path, f.spec(s)); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the spec at a dot path such as "stellar.stellar_mass".
func (s *Set) Lookup(path string) (*Spec, error) {
	i, ok := fieldIndex[strings.TrimSpace(path)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", path, ErrUnknownPath)
	}
	return fields[i].spec(s), nil
}

// SetPath assigns the value of the spec at path, enforcing its invariant.
func (s *Set) SetPath(path string, v float64) error {
	spec, err := s.Lookup(path)
	if err != nil {
		return err
	}
	if err := spec.SetValue(v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Check verifies every spec invariant and returns the first violation.
func (s *Set) Check() error {
	return s.Walk(func(path string, spec *Spec) error {
		if err := spec.Check(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	})
}

// DepthLimit returns the recursion depth limit of the sampling group.
func (s *Set) DepthLimit() (int, error) {
	return s.Sampling.DepthLimit.Int()
}
