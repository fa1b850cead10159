package batch

import (
	"fmt"

	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/sampling"
)

// Unit is one root configuration queued for a batch.
type Unit struct {
	Set *params.Set

	// Source classifies the input for provenance (preset, file, sampler name).
	Source string

	// SourcePath is the parameter file, when there was one.
	SourcePath string

	// Metadata is copied into the unit's provenance record.
	Metadata map[string]any
}

// Earth returns n copies of the Earth preset.
func Earth(n int) ([]Unit, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeSize, n)
	}
	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{Set: params.Earth(), Source: "preset:earth"}
	}
	return units, nil
}

// Sampled draws n sets with fn. Sample i depends only on seed and i.
func Sampled(n int, seed uint64, name string, fn sampling.Func) ([]Unit, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeSize, n)
	}
	sets, err := sampling.Draw(n, seed, fn)
	if err != nil {
		return nil, err
	}
	units := make([]Unit, n)
	for i, set := range sets {
		units[i] = Unit{
			Set:      set,
			Source:   "sampler:" + name,
			Metadata: map[string]any{"sample_seed": seed, "sample_index": i},
		}
	}
	return units, nil
}

// Sets wraps prepared sets, such as a sweep grid, under one source label.
func Sets(source, path string, sets []*params.Set) []Unit {
	units := make([]Unit, len(sets))
	for i, set := range sets {
		units[i] = Unit{Set: set, Source: source, SourcePath: path}
	}
	return units
}
