package params

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// maxSweepPoints bounds a single range expansion.
const maxSweepPoints = 10_000

// MaxGridPoints bounds the number of sets Grid will build.
const MaxGridPoints = 100_000

// Grid expands base into one clone per combination of sweep values.
//
// Sweep keys are dot paths; they are expanded in sorted order so the grid is
// stable across runs. An empty sweep yields a single clone of base.
func Grid(base *Set, sweep map[string][]float64) ([]*Set, error) {
	if len(sweep) == 0 {
		return []*Set{base.Clone()}, nil
	}

	paths := sortedKeys(sweep)
	total := 1
	for _, p := range paths {
		if _, err := base.Lookup(p); err != nil {
			return nil, err
		}
		if len(sweep[p]) == 0 {
			return nil, fmt.Errorf("sweep %s: no values", p)
		}
		total *= len(sweep[p])
		if total > MaxGridPoints {
			return nil, fmt.Errorf("%w: more than %d combinations", ErrGridTooLarge, MaxGridPoints)
		}
	}

	grid := make([]*Set, 0, total)
	idx := make([]int, len(paths))
	for {
		s := base.Clone()
		for i, p := range paths {
			if err := s.SetPath(p, sweep[p][idx[i]]); err != nil {
				return nil, fmt.Errorf("sweep: %w", err)
			}
		}
		grid = append(grid, s)

		// Odometer increment; the last path varies fastest.
		i := len(paths) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(sweep[paths[i]]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return grid, nil
		}
	}
}

// LoadSweep reads a YAML or JSON sweep file mapping dot paths to values.
// Each path maps to a list of numbers or to a {start, stop, step} range
// with stop included when the steps land on it.
func LoadSweep(path string) (map[string][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	sweep := make(map[string][]float64, len(raw))
	for _, key := range sortedKeys(raw) {
		vals, err := sweepValues(raw[key])
		if err != nil {
			return nil, fmt.Errorf("sweep %s: %w", key, err)
		}
		sweep[key] = vals
	}
	return sweep, nil
}

func sweepValues(v any) ([]float64, error) {
	switch x := v.(type) {
	case []any:
		out := make([]float64, len(x))
		for i, item := range x {
			n, err := number(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		var bounds [3]float64
		for i, k := range []string{"start", "stop", "step"} {
			n, err := number(x[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			bounds[i] = n
		}
		return expandRange(bounds[0], bounds[1], bounds[2])
	default:
		n, err := number(v)
		if err != nil {
			return nil, err
		}
		return []float64{n}, nil
	}
}

func expandRange(start, stop, step float64) ([]float64, error) {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("step must be positive, got %g", step)
	}
	if stop < start {
		return nil, fmt.Errorf("stop %g is before start %g", stop, start)
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	if n > maxSweepPoints {
		return nil, fmt.Errorf("range expands to %d points, limit %d", n, maxSweepPoints)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out, nil
}
