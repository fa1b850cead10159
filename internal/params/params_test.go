package params

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneDoesNotAlias(t *testing.T) {
	orig := Earth()
	clone := orig.Clone()

	require.NoError(t, clone.SetPath("stellar.stellar_mass", 2.5))
	*clone.Cosmological.HubbleConstant.Min = 0

	assert.Equal(t, 1.0, *orig.Stellar.Mass.Value)
	assert.Equal(t, 60.0, *orig.Cosmological.HubbleConstant.Min)
	assert.Equal(t, 2.5, *clone.Stellar.Mass.Value)
}

func TestWalkVisitsEverySpecInOrder(t *testing.T) {
	var seen []string
	err := Default().Walk(func(path string, _ *Spec) error {
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Paths(), seen)
	assert.Len(t, seen, 19)
	assert.Equal(t, "cosmological.hubble_constant", seen[0])
}

func TestSetValueEnforcesInvariant(t *testing.T) {
	s := Default()

	err := s.SetPath("stellar.stellar_mass", 200)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	err = s.SetPath("planetary.planetary_system_multiplicity", 2.5)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = s.SetPath("planetary.nope", 1)
	assert.ErrorIs(t, err, ErrUnknownPath)

	require.NoError(t, s.SetPath("planetary.planetary_system_multiplicity", 3))
	n, err := s.Planetary.Multiplicity.Int()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMissingValue(t *testing.T) {
	s := Default()
	_, err := s.Habitability.LiquidWaterZone.Float()
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		in   float64
		want float64
	}{
		{"inside", floatSpec("f", "", Ptr(0), Ptr(1), nil), 0.4, 0.4},
		{"below", floatSpec("f", "", Ptr(0), Ptr(1), nil), -3, 0},
		{"above", floatSpec("f", "", Ptr(0), Ptr(1), nil), 7, 1},
		{"unbounded", floatSpec("f", "", nil, nil, nil), 7, 7},
		{"int rounds", intSpec("i", "", Ptr(1), Ptr(20), nil), 3.6, 4},
		{"int fractional bounds", intSpec("i", "", Ptr(0.5), Ptr(2.5), nil), 2.5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Clip(tt.in))
		})
	}
}

func TestEarthPassesOwnInvariants(t *testing.T) {
	assert.NoError(t, Earth().Check())
	assert.NoError(t, Default().Check())
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.yaml")
	doc := `
cosmological:
  hubble_constant: 72
habitability:
  liquid_water_zone_range:
    min: 0.9
    max: 1.4
    value: 1.1
sampling:
  recursive_depth_limit: 3
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 72.0, *s.Cosmological.HubbleConstant.Value)
	assert.Equal(t, 1.1, *s.Habitability.LiquidWaterZone.Value)
	assert.Equal(t, 0.9, *s.Habitability.LiquidWaterZone.Min)
	limit, err := s.DepthLimit()
	require.NoError(t, err)
	assert.Equal(t, 3, limit)
}

func TestLoadJSONRejectsOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stellar": {"stellar_mass": 200}}`), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestLoadRejectsUnknownGroupAndFormat(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "p.yml")
	require.NoError(t, os.WriteFile(yml, []byte("galactic:\n  x: 1\n"), 0o600))
	_, err := Load(yml)
	assert.ErrorIs(t, err, ErrUnknownPath)

	txt := filepath.Join(dir, "p.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))
	_, err = Load(txt)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeRoundTripsThroughLoad(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Earth()))

	path := filepath.Join(t.TempDir(), "earth.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Earth(), loaded)
}

func TestGrid(t *testing.T) {
	grid, err := Grid(Earth(), map[string][]float64{
		"stellar.stellar_mass":         {0.8, 1.2},
		"cosmological.hubble_constant": {65, 70, 72},
	})
	require.NoError(t, err)
	require.Len(t, grid, 6)

	// hubble_constant sorts first, so stellar_mass varies fastest.
	assert.Equal(t, 65.0, *grid[0].Cosmological.HubbleConstant.Value)
	assert.Equal(t, 0.8, *grid[0].Stellar.Mass.Value)
	assert.Equal(t, 1.2, *grid[1].Stellar.Mass.Value)
	assert.Equal(t, 72.0, *grid[5].Cosmological.HubbleConstant.Value)

	single, err := Grid(Earth(), nil)
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = Grid(Earth(), map[string][]float64{"stellar.stellar_mass": {500}})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestGridRejectsOversizedProduct(t *testing.T) {
	values := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 1
		}
		return out
	}
	sweep := map[string][]float64{
		"stellar.stellar_mass":         values(1000),
		"cosmological.hubble_constant": values(1000),
		"planetary.planet_distance":    values(1000),
	}

	grid, err := Grid(Earth(), sweep)
	assert.ErrorIs(t, err, ErrGridTooLarge)
	assert.Nil(t, grid)
}

func TestLoadSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stellar.stellar_mass: [0.8, 1, 1.2]
cosmological.hubble_constant:
  start: 60
  stop: 70
  step: 5
planetary.planet_distance: 1.1
`), 0o644))

	sweep, err := LoadSweep(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8, 1, 1.2}, sweep["stellar.stellar_mass"])
	assert.Equal(t, []float64{1.1}, sweep["planetary.planet_distance"])
	h := sweep["cosmological.hubble_constant"]
	require.Len(t, h, 3)
	assert.InDelta(t, 70.0, h[2], 1e-9)

	grid, err := Grid(Earth(), sweep)
	require.NoError(t, err)
	assert.Len(t, grid, 9)
}

func TestLoadSweepRejectsBadRanges(t *testing.T) {
	for name, body := range map[string]string{
		"zero step":  "stellar.stellar_mass: {start: 1, stop: 2, step: 0}",
		"backwards":  "stellar.stellar_mass: {start: 2, stop: 1, step: 0.1}",
		"not number": "stellar.stellar_mass: [heavy]",
		"too many":   "stellar.stellar_mass: {start: 0, stop: 1, step: 0.00001}",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sweep.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadSweep(path)
			assert.Error(t, err)
		})
	}
}
