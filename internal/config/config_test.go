package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var envKeys = []string{
	"RDEE_OUTPUT", "RDEE_BASE_DIR", "RDEE_VERBOSE", "RDEE_LOG_LEVEL",
	"RDEE_BRANCHING_FACTOR", "RDEE_PERTURBATION_SCALE", "RDEE_STRATEGY",
	"RDEE_MAX_NODES", "RDEE_EXHAUSTIVE", "RDEE_STORAGE_BACKEND",
	"RDEE_STORAGE_PATH", "RDEE_BATCH_SIZE", "RDEE_WORKERS", "RDEE_SAMPLER",
	"RDEE_METRICS_FILE",
}

// isolate points HOME and cwd at empty temp dirs and clears RDEE_* vars.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RDEE_CONFIG", "")
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output != "table" {
		t.Errorf("Default Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.BaseDir != ".rdee/runs" {
		t.Errorf("Default BaseDir = %q, want %q", cfg.BaseDir, ".rdee/runs")
	}
	if cfg.Verbose {
		t.Error("Default Verbose = true, want false")
	}
	if cfg.Engine.BranchingFactor != 2 {
		t.Errorf("Default BranchingFactor = %d, want 2", cfg.Engine.BranchingFactor)
	}
	if cfg.Engine.Scale() != 0.05 {
		t.Errorf("Default Scale() = %g, want 0.05", cfg.Engine.Scale())
	}
	if cfg.Engine.MaxNodes != 1_000_000 {
		t.Errorf("Default MaxNodes = %d, want 1000000", cfg.Engine.MaxNodes)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Default Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.Batch.Size != 100 {
		t.Errorf("Default Batch.Size = %d, want 100", cfg.Batch.Size)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestMerge(t *testing.T) {
	dst := Default()
	src := &Config{
		Output:  "json",
		BaseDir: "/custom/path",
		Engine:  EngineConfig{BranchingFactor: 3, Exhaustive: true},
		Stages: map[string]IntervalConfig{
			"stellar_mass": {Max: ptr(2)},
		},
	}

	result := merge(dst, src)

	if result.Output != "json" {
		t.Errorf("merge Output = %q, want %q", result.Output, "json")
	}
	if result.BaseDir != "/custom/path" {
		t.Errorf("merge BaseDir = %q, want %q", result.BaseDir, "/custom/path")
	}
	if result.Engine.BranchingFactor != 3 || !result.Engine.Exhaustive {
		t.Errorf("merge Engine = %+v, want k=3 exhaustive", result.Engine)
	}
	// Defaults should be preserved when not overridden
	if result.Engine.Scale() != 0.05 {
		t.Errorf("merge preserved Scale() = %g, want 0.05", result.Engine.Scale())
	}
	if result.Batch.Size != 100 {
		t.Errorf("merge preserved Batch.Size = %d, want 100", result.Batch.Size)
	}
	if got := result.Stages["stellar_mass"].Max; got == nil || *got != 2 {
		t.Errorf("merge Stages[stellar_mass].Max = %v, want 2", got)
	}
}

func TestMerge_VerboseOnlyTurnsOn(t *testing.T) {
	dst := Default()
	dst.Verbose = true
	result := merge(dst, &Config{Output: "json"})
	if !result.Verbose {
		t.Error("merge should not clear Verbose")
	}
}

func ptr(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad output", func(c *Config) { c.Output = "xml" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"bad strategy", func(c *Config) { c.Engine.Strategy = "cauchy" }, true},
		{"negative scale", func(c *Config) { c.Engine.PerturbationScale = ptr(-1) }, true},
		{"negative branching", func(c *Config) { c.Engine.BranchingFactor = -2 }, true},
		{"bad backend", func(c *Config) { c.Storage.Backend = "hdf5" }, true},
		{"badger backend", func(c *Config) { c.Storage.Backend = "badger" }, false},
		{"bad sampler", func(c *Config) { c.Batch.Sampler = "sobol" }, true},
		{"negative workers", func(c *Config) { c.Batch.Workers = -1 }, true},
		{"inverted batch bound", func(c *Config) {
			c.Batch.Bounds = map[string]IntervalConfig{"stellar.stellar_mass": {Min: ptr(2), Max: ptr(1)}}
		}, true},
		{"inverted interval", func(c *Config) {
			c.Stages = map[string]IntervalConfig{"planet_mass": {Min: ptr(5), Max: ptr(1)}}
		}, true},
		{"open interval", func(c *Config) {
			c.Stages = map[string]IntervalConfig{"planet_mass": {Min: ptr(5)}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestIntervals(t *testing.T) {
	cfg := Default()
	if cfg.Intervals() != nil {
		t.Error("Intervals() with no stages should be nil")
	}
	cfg.Stages = map[string]IntervalConfig{"stellar_mass": {Min: ptr(0.5), Max: ptr(1.5)}}
	iv := cfg.Intervals()["stellar_mass"]
	if !iv.Contains(1) || iv.Contains(2) {
		t.Errorf("Intervals()[stellar_mass] = %+v, want [0.5, 1.5]", iv)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, `
output: json
base_dir: /custom/runs
verbose: true
engine:
  branching_factor: 4
  perturbation_scale: 0.1
  strategy: gaussian
storage:
  backend: badger
batch:
  workers: 8
stages:
  stellar_mass:
    min: 0.5
    max: 1.5
`)

	cfg, err := loadFromPath(configPath)
	if err != nil {
		t.Fatalf("loadFromPath() error = %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("loadFromPath Output = %q, want %q", cfg.Output, "json")
	}
	if cfg.BaseDir != "/custom/runs" {
		t.Errorf("loadFromPath BaseDir = %q, want %q", cfg.BaseDir, "/custom/runs")
	}
	if !cfg.Verbose {
		t.Error("loadFromPath Verbose = false, want true")
	}
	if cfg.Engine.BranchingFactor != 4 || cfg.Engine.Strategy != "gaussian" {
		t.Errorf("loadFromPath Engine = %+v", cfg.Engine)
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("loadFromPath Storage.Backend = %q, want badger", cfg.Storage.Backend)
	}
	if cfg.Batch.Workers != 8 {
		t.Errorf("loadFromPath Batch.Workers = %d, want 8", cfg.Batch.Workers)
	}
	if iv, ok := cfg.Stages["stellar_mass"]; !ok || *iv.Min != 0.5 || *iv.Max != 1.5 {
		t.Errorf("loadFromPath Stages = %+v", cfg.Stages)
	}
}

func TestLoadFromPath_NotExists(t *testing.T) {
	cfg, err := loadFromPath("/nonexistent/config.yaml")
	if cfg != nil {
		t.Errorf("loadFromPath for nonexistent file should return nil config")
	}
	if err == nil {
		t.Errorf("loadFromPath for nonexistent file should return error")
	}
}

func TestLoadFromPath_Empty(t *testing.T) {
	cfg, err := loadFromPath("")
	if cfg != nil || err != nil {
		t.Errorf("loadFromPath(\"\") = %v, %v; want nil, nil", cfg, err)
	}
}

func TestApplyEnv(t *testing.T) {
	isolate(t)
	t.Setenv("RDEE_OUTPUT", "yaml")
	t.Setenv("RDEE_VERBOSE", "1")
	t.Setenv("RDEE_BRANCHING_FACTOR", "5")
	t.Setenv("RDEE_PERTURBATION_SCALE", "0.2")
	t.Setenv("RDEE_EXHAUSTIVE", "true")
	t.Setenv("RDEE_STORAGE_BACKEND", "badger")
	t.Setenv("RDEE_WORKERS", "3")
	t.Setenv("RDEE_MAX_NODES", "not-a-number")

	cfg := applyEnv(Default())

	if cfg.Output != "yaml" {
		t.Errorf("applyEnv Output = %q, want yaml", cfg.Output)
	}
	if !cfg.Verbose {
		t.Error("applyEnv Verbose = false, want true")
	}
	if cfg.Engine.BranchingFactor != 5 {
		t.Errorf("applyEnv BranchingFactor = %d, want 5", cfg.Engine.BranchingFactor)
	}
	if cfg.Engine.Scale() != 0.2 {
		t.Errorf("applyEnv Scale() = %g, want 0.2", cfg.Engine.Scale())
	}
	if !cfg.Engine.Exhaustive {
		t.Error("applyEnv Exhaustive = false, want true")
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("applyEnv Storage.Backend = %q, want badger", cfg.Storage.Backend)
	}
	if cfg.Batch.Workers != 3 {
		t.Errorf("applyEnv Workers = %d, want 3", cfg.Batch.Workers)
	}
	if cfg.Engine.MaxNodes != 1_000_000 {
		t.Errorf("applyEnv MaxNodes = %d, unparseable value should be ignored", cfg.Engine.MaxNodes)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		envVal  string
		wantVal bool
		wantSet bool
	}{
		{"true", true, true},
		{"1", true, true},
		{"TRUE", true, true},
		{"false", false, true},
		{"0", false, true},
		{"", false, false},
		{"yes", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.envVal, func(t *testing.T) {
			t.Setenv("TEST_BOOL_KEY", tt.envVal)
			val, set := getEnvBool("TEST_BOOL_KEY")
			if val != tt.wantVal || set != tt.wantSet {
				t.Errorf("getEnvBool(%q) = (%v, %v), want (%v, %v)", tt.envVal, val, set, tt.wantVal, tt.wantSet)
			}
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	home := os.Getenv("HOME")
	writeFile(t, filepath.Join(home, ".rdee", "config.yaml"), "output: yaml\nbatch:\n  size: 10\nengine:\n  branching_factor: 3\n")
	writeFile(t, filepath.Join(dir, ".rdee", "config.yaml"), "output: json\nengine:\n  strategy: gaussian\n")
	t.Setenv("RDEE_BATCH_SIZE", "20")

	cfg, err := Load(&Config{BaseDir: "/flag/base"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("project should override home: Output = %q", cfg.Output)
	}
	if cfg.Engine.BranchingFactor != 3 {
		t.Errorf("home should override default: BranchingFactor = %d", cfg.Engine.BranchingFactor)
	}
	if cfg.Engine.Strategy != "gaussian" {
		t.Errorf("project Strategy = %q, want gaussian", cfg.Engine.Strategy)
	}
	if cfg.Batch.Size != 20 {
		t.Errorf("env should override home: Batch.Size = %d", cfg.Batch.Size)
	}
	if cfg.BaseDir != "/flag/base" {
		t.Errorf("flag BaseDir = %q, want /flag/base", cfg.BaseDir)
	}
}

func TestLoad_ZeroScaleFromFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".rdee", "config.yaml"), "engine:\n  perturbation_scale: 0\n")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Scale() != 0 {
		t.Errorf("file perturbation_scale 0: Scale() = %g, want 0", cfg.Engine.Scale())
	}

	cfg, err = Load(&Config{Engine: EngineConfig{PerturbationScale: ptr(0.3)}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Scale() != 0.3 {
		t.Errorf("flag should override file: Scale() = %g, want 0.3", cfg.Engine.Scale())
	}
}

func TestLoad_StagesAndBoundsStaySeparate(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".rdee", "config.yaml"),
		"stages:\n  stellar_mass:\n    min: 0.8\nbatch:\n  bounds:\n    stellar.stellar_mass:\n      max: 1.2\n")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := cfg.Intervals()["stellar_mass"]; !ok {
		t.Errorf("Intervals() = %v, want stellar_mass", cfg.Intervals())
	}
	b, ok := cfg.SampleBounds()["stellar.stellar_mass"]
	if !ok || b.Max == nil || *b.Max != 1.2 {
		t.Errorf("SampleBounds() = %v, want stellar.stellar_mass max 1.2", cfg.SampleBounds())
	}
	if _, ok := cfg.SampleBounds()["stellar_mass"]; ok {
		t.Error("stage range names leaked into sampling bounds")
	}
}

func TestLoad_NilOverrides(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "table" {
		t.Errorf("Load nil Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.BaseDir != ".rdee/runs" {
		t.Errorf("Load nil BaseDir = %q, want %q", cfg.BaseDir, ".rdee/runs")
	}
}

func TestLoad_ExplicitConfig(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, path, "log_level: debug\n")
	t.Setenv("RDEE_CONFIG", path)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Load LogLevel = %q, want debug", cfg.LogLevel)
	}

	t.Setenv("RDEE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(nil); err == nil {
		t.Error("Load with missing RDEE_CONFIG should fail")
	}
}

func TestLoad_InvalidValueRejected(t *testing.T) {
	isolate(t)
	t.Setenv("RDEE_STRATEGY", "cauchy")

	if _, err := Load(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestResolveStringField(t *testing.T) {
	tests := []struct {
		name       string
		home       string
		project    string
		env        string
		flag       string
		wantValue  string
		wantSource Source
	}{
		{name: "default only", wantValue: "table", wantSource: SourceDefault},
		{name: "home overrides default", home: "json", wantValue: "json", wantSource: SourceHome},
		{name: "project overrides home", home: "json", project: "yaml", wantValue: "yaml", wantSource: SourceProject},
		{name: "env overrides project", project: "yaml", env: "json", wantValue: "json", wantSource: SourceEnv},
		{name: "flag overrides all", home: "a", project: "b", env: "c", flag: "d", wantValue: "d", wantSource: SourceFlag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveStringField(tt.home, tt.project, tt.env, tt.flag, "table")
			if got.Value != tt.wantValue || got.Source != tt.wantSource {
				t.Errorf("resolveStringField() = %v/%v, want %v/%v", got.Value, got.Source, tt.wantValue, tt.wantSource)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".rdee", "config.yaml"), "engine:\n  branching_factor: 4\n")
	t.Setenv("RDEE_SAMPLER", "natural")

	rc := Resolve("json", "/flag/path", true)

	if rc.Output.Value != "json" || rc.Output.Source != SourceFlag {
		t.Errorf("Resolve Output = %v/%v, want json/flag", rc.Output.Value, rc.Output.Source)
	}
	if rc.BaseDir.Value != "/flag/path" {
		t.Errorf("Resolve BaseDir.Value = %v, want %q", rc.BaseDir.Value, "/flag/path")
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceFlag {
		t.Errorf("Resolve Verbose = %v/%v, want true/flag", rc.Verbose.Value, rc.Verbose.Source)
	}
	if rc.BranchingFactor.Value != 4 || rc.BranchingFactor.Source != SourceProject {
		t.Errorf("Resolve BranchingFactor = %v/%v, want 4/project", rc.BranchingFactor.Value, rc.BranchingFactor.Source)
	}
	if rc.Sampler.Value != "natural" || rc.Sampler.Source != SourceEnv {
		t.Errorf("Resolve Sampler = %v/%v, want natural/environment", rc.Sampler.Value, rc.Sampler.Source)
	}
	if rc.MaxNodes.Value != 1_000_000 || rc.MaxNodes.Source != SourceDefault {
		t.Errorf("Resolve MaxNodes = %v/%v, want default", rc.MaxNodes.Value, rc.MaxNodes.Source)
	}
}
