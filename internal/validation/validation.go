// Package validation gates parameter sets before they reach the engine. The
// engine itself never checks physical plausibility; callers run Validate
// first and skip sets that fail.
package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/boshu2/rdee/internal/params"
)

// specValidate checks spec struct tags plus the bound ordering rule.
var specValidate *validator.Validate

func init() {
	specValidate = validator.New()
	specValidate.RegisterStructValidation(boundsOrdered, params.Spec{})
}

// boundsOrdered rejects a spec whose minimum exceeds its maximum.
func boundsOrdered(sl validator.StructLevel) {
	spec := sl.Current().Interface().(params.Spec)
	if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
		sl.ReportError(spec.Min, "Min", "min", "ltefield", "Max")
	}
}

// Validate runs the schema, physical and sanity checks and returns a
// *PipelineError listing every violation, or nil.
func Validate(set *params.Set) error {
	var errs []error
	errs = append(errs, Schema(set)...)
	errs = append(errs, PhysicalConstraints(set)...)
	errs = append(errs, Sanity(set)...)
	if len(errs) == 0 {
		return nil
	}
	return &PipelineError{Errors: errs}
}

// Schema checks each spec's tags, bound order, datatype and bounds.
func Schema(set *params.Set) []error {
	var errs []error
	_ = set.Walk(func(path string, spec *params.Spec) error {
		if err := specValidate.Struct(spec); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					errs = append(errs, &Violation{Kind: ErrSchema, Path: path, Msg: fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag())})
				}
			} else {
				errs = append(errs, &Violation{Kind: ErrSchema, Path: path, Msg: err.Error()})
			}
		}
		if err := spec.Check(); err != nil {
			errs = append(errs, &Violation{Kind: ErrSchema, Path: path, Msg: err.Error()})
		}
		return nil
	})
	return errs
}

// rule collects violations of one kind.
type rule struct {
	kind error
	errs []error
}

func (r *rule) failf(path, format string, args ...any) {
	r.errs = append(r.errs, &Violation{Kind: r.kind, Path: path, Msg: fmt.Sprintf(format, args...)})
}

// required returns the value at path or records it as missing.
func (r *rule) required(set *params.Set, path string) (float64, bool) {
	spec, err := set.Lookup(path)
	if err != nil {
		r.failf(path, "%v", err)
		return 0, false
	}
	if !spec.HasValue() {
		r.failf(path, "%s must be provided", spec.Name)
		return 0, false
	}
	return *spec.Value, true
}

func (r *rule) between(set *params.Set, path string, lo, hi float64) {
	v, ok := r.required(set, path)
	if ok && (v < lo || v > hi) {
		r.failf(path, "must be between %g and %g, got %g", lo, hi, v)
	}
}

// PhysicalConstraints checks cross-parameter feasibility.
func PhysicalConstraints(set *params.Set) []error {
	r := &rule{kind: ErrPhysical}

	r.between(set, "stellar.stellar_mass", 0.1, 100)
	r.between(set, "stellar.stellar_metallicity", 0.0001, 0.03)

	if dist, ok := r.required(set, "planetary.planet_distance"); ok {
		if lo, hi, ok := waterZone(&set.Habitability.LiquidWaterZone); ok && (dist < lo || dist > hi) {
			r.failf("planetary.planet_distance", "%g AU is outside the liquid water zone [%g, %g]", dist, lo, hi)
		}
	}

	r.between(set, "habitability.tidal_locking_probability", 0, 1)
	r.between(set, "evolutionary.evolutionary_fragility_multiplier", 0, 1)
	r.between(set, "prebiotic.polymerization_failure_rate", 0, 1)

	if depth, ok := r.required(set, "sampling.recursive_depth_limit"); ok {
		if depth <= 0 || depth != math.Trunc(depth) {
			r.failf("sampling.recursive_depth_limit", "must be a positive integer, got %g", depth)
		}
	}
	if w := set.Sampling.SensitivityWindow.Value; w != nil && *w < 0 {
		r.failf("sampling.survival_corridor_sensitivity_window", "must be non-negative, got %g", *w)
	}

	return r.errs
}

// waterZone returns the zone interval: the spec bounds when present, else
// [0, value].
func waterZone(spec *params.Spec) (float64, float64, bool) {
	if spec.Bounded() {
		return *spec.Min, *spec.Max, true
	}
	if spec.HasValue() {
		return 0, *spec.Value, true
	}
	return 0, 0, false
}

// Sanity checks high-level plausibility rules.
func Sanity(set *params.Set) []error {
	r := &rule{kind: ErrSanity}

	if m := set.Planetary.Multiplicity.Value; m == nil || *m < 1 {
		r.failf("planetary.planetary_system_multiplicity", "must be at least 1")
	}
	if p := set.Prebiotic.SynthesisProbability.Value; p == nil || *p <= 0 {
		r.failf("prebiotic.prebiotic_synthesis_success_probability", "must be greater than zero")
	}
	if c := set.Evolutionary.ComplexityThreshold.Value; c == nil || *c < 1 {
		r.failf("evolutionary.evolutionary_complexity_threshold", "must be at least 1")
	}

	lwz := &set.Habitability.LiquidWaterZone
	if d := set.Planetary.Distance.Value; d != nil {
		switch {
		case lwz.Bounded():
			if *d < *lwz.Min/2 || *d > *lwz.Max*2 {
				r.failf("planetary.planet_distance", "deviates more than 2x from liquid water zone bounds")
			}
		case lwz.HasValue():
			if *d < *lwz.Value/2 || *d > *lwz.Value*2 {
				r.failf("planetary.planet_distance", "deviates more than 2x from liquid water zone")
			}
		}
	}

	if f := set.Evolutionary.ExtinctionFrequency.Value; f != nil && *f < 0 {
		r.failf("evolutionary.mass_extinction_frequency", "must be non-negative when provided")
	}

	return r.errs
}
