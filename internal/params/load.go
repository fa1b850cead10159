package params

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML or JSON parameter file and overlays it on Default().
//
// Each group maps field names to either a scalar value or a mapping with
// optional value, min and max keys, so the output of Encode loads back.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameter file: %w", err)
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: invalid YAML: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: invalid JSON: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	set := Default()
	if err := set.Overlay(raw); err != nil {
		return nil, fmt.Errorf("apply %s: %w", path, err)
	}
	return set, nil
}

// Overlay applies a decoded group/field mapping on top of s.
func (s *Set) Overlay(raw map[string]any) error {
	for _, group := range sortedKeys(raw) {
		members, ok := raw[group].(map[string]any)
		if !ok {
			if _, known := groupNames[group]; !known {
				return fmt.Errorf("%q: %w", group, ErrUnknownPath)
			}
			return fmt.Errorf("group %q: expected mapping, got %T: %w", group, raw[group], ErrTypeMismatch)
		}
		for _, name := range sortedKeys(members) {
			path := group + "." + name
			spec, err := s.Lookup(path)
			if err != nil {
				return err
			}
			if err := applyValue(spec, members[name]); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

var groupNames = map[string]struct{}{
	"cosmological": {}, "stellar": {}, "planetary": {}, "habitability": {},
	"prebiotic": {}, "evolutionary": {}, "sampling": {},
}

func applyValue(spec *Spec, v any) error {
	switch val := v.(type) {
	case nil:
		spec.Value = nil
		return nil
	case map[string]any:
		if raw, ok := val["min"]; ok {
			min, err := optionalNumber(raw)
			if err != nil {
				return fmt.Errorf("min: %w", err)
			}
			spec.Min = min
		}
		if raw, ok := val["max"]; ok {
			max, err := optionalNumber(raw)
			if err != nil {
				return fmt.Errorf("max: %w", err)
			}
			spec.Max = max
		}
		if raw, ok := val["value"]; ok {
			value, err := optionalNumber(raw)
			if err != nil {
				return fmt.Errorf("value: %w", err)
			}
			spec.Value = value
		}
		return spec.Check()
	default:
		n, err := number(v)
		if err != nil {
			return err
		}
		return spec.SetValue(n)
	}
}

func optionalNumber(v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	n, err := number(v)
	if err != nil {
		return nil, err
	}
	return Ptr(n), nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T: %w", v, ErrTypeMismatch)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode writes s as a YAML parameter document.
func Encode(w io.Writer, s *Set) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	return enc.Close()
}
