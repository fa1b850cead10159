// Package config provides configuration management for rdee.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (RDEE_*)
// 3. Project config (.rdee/config.yaml in cwd, or RDEE_CONFIG)
// 4. Home config (~/.rdee/config.yaml)
// 5. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/rdee/internal/survival"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all rdee configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml, jsonl).
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=table json yaml jsonl"`

	// BaseDir is where runs are stored (default: .rdee/runs).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// LogLevel is the slog level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Engine settings
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Batch settings
	Batch BatchConfig `yaml:"batch" json:"batch"`

	// Stages overrides survival intervals by range name (e.g. stellar_mass).
	Stages map[string]IntervalConfig `yaml:"stages,omitempty" json:"stages,omitempty"`
}

// EngineConfig holds recursion controller and branch generator settings.
type EngineConfig struct {
	BranchingFactor int `yaml:"branching_factor" json:"branching_factor" validate:"gte=0"`

	// PerturbationScale is a pointer so an explicit 0 (identity branching)
	// survives merging.
	PerturbationScale *float64 `yaml:"perturbation_scale,omitempty" json:"perturbation_scale,omitempty" validate:"omitempty,gte=0"`

	// Strategy is uniform or gaussian.
	Strategy string `yaml:"strategy" json:"strategy" validate:"omitempty,oneof=uniform gaussian"`

	// MaxNodes caps evaluated nodes per root run. Negative disables the cap.
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`

	// Exhaustive explores every child instead of stopping at the first survivor.
	Exhaustive bool `yaml:"exhaustive" json:"exhaustive"`
}

// StorageConfig selects the trace backend.
type StorageConfig struct {
	// Backend is file (default) or badger.
	Backend string `yaml:"backend" json:"backend" validate:"omitempty,oneof=file badger"`

	// Path overrides the backend location. Defaults derive from BaseDir.
	Path string `yaml:"path" json:"path"`
}

// BatchConfig holds batch orchestration settings.
type BatchConfig struct {
	Size int `yaml:"size" json:"size" validate:"gte=0"`

	// Workers bounds concurrent units (0 = NumCPU).
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"`

	// Sampler is uniform or natural.
	Sampler string `yaml:"sampler" json:"sampler" validate:"omitempty,oneof=uniform natural"`

	// MetricsFile, when set, receives Prometheus textfile output after a batch.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`

	// Bounds narrows uniform sampling by parameter dot path
	// (e.g. stellar.stellar_mass).
	Bounds map[string]IntervalConfig `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

// IntervalConfig is a survival interval; a nil side is open.
type IntervalConfig struct {
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput    = "table"
	defaultBaseDir   = ".rdee/runs"
	defaultLogLevel  = "info"
	defaultBackend   = "file"
	defaultStrategy  = "uniform"
	defaultSampler   = "uniform"
	defaultBranching = 2
	defaultScale     = 0.05
	defaultMaxNodes  = 1_000_000
	defaultBatchSize = 100
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterStructValidation(intervalOrdered, IntervalConfig{})
}

func intervalOrdered(sl validator.StructLevel) {
	iv := sl.Current().Interface().(IntervalConfig)
	if iv.Min != nil && iv.Max != nil && *iv.Min > *iv.Max {
		sl.ReportError(iv.Min, "Min", "min", "ltefield", "Max")
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:   defaultOutput,
		BaseDir:  defaultBaseDir,
		Verbose:  false,
		LogLevel: defaultLogLevel,
		Engine: EngineConfig{
			BranchingFactor:   defaultBranching,
			PerturbationScale: floatPtr(defaultScale),
			Strategy:          defaultStrategy,
			MaxNodes:          defaultMaxNodes,
		},
		Storage: StorageConfig{
			Backend: defaultBackend,
		},
		Batch: BatchConfig{
			Size:    defaultBatchSize,
			Sampler: defaultSampler,
		},
	}
}

// Validate checks field tags and interval ordering.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for name, iv := range c.Stages {
		if err := configValidate.Struct(iv); err != nil {
			return fmt.Errorf("%w: stages.%s: %w", ErrInvalidConfig, name, err)
		}
	}
	for path, iv := range c.Batch.Bounds {
		if err := configValidate.Struct(iv); err != nil {
			return fmt.Errorf("%w: batch.bounds.%s: %w", ErrInvalidConfig, path, err)
		}
	}
	return nil
}

// Scale returns the perturbation scale, or the default when unset.
func (e EngineConfig) Scale() float64 {
	if e.PerturbationScale == nil {
		return defaultScale
	}
	return *e.PerturbationScale
}

// Intervals converts stage overrides for stage.Ranges.Apply. Keys are
// range names.
func (c *Config) Intervals() map[string]survival.Interval {
	return toIntervals(c.Stages)
}

// SampleBounds converts batch bounds for the uniform sampler. Keys are
// parameter dot paths.
func (c *Config) SampleBounds() map[string]survival.Interval {
	return toIntervals(c.Batch.Bounds)
}

func toIntervals(in map[string]IntervalConfig) map[string]survival.Interval {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]survival.Interval, len(in))
	for name, iv := range in {
		out[name] = survival.Interval{Min: iv.Min, Max: iv.Max}
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

// Load loads configuration with proper precedence and validates it.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	// Load home config
	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	// Load project config. An explicit RDEE_CONFIG must parse.
	projectConfig, err := loadFromPath(projectConfigPath())
	if err != nil && explicitConfig() != "" {
		return nil, fmt.Errorf("load %s: %w", explicitConfig(), err)
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	// Apply environment variables
	cfg = applyEnv(cfg)

	// Apply flag overrides
	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPaths returns the home and project config paths in load order.
func ConfigPaths() (home, project string) {
	return homeConfigPath(), projectConfigPath()
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rdee", "config.yaml")
}

func explicitConfig() string {
	return strings.TrimSpace(os.Getenv("RDEE_CONFIG"))
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := explicitConfig(); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".rdee", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides. Unparseable numbers
// are ignored.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("RDEE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("RDEE_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v, ok := getEnvBool("RDEE_VERBOSE"); ok {
		cfg.Verbose = v
	}
	if v := os.Getenv("RDEE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := getEnvInt("RDEE_BRANCHING_FACTOR"); ok {
		cfg.Engine.BranchingFactor = v
	}
	if v, ok := getEnvFloat("RDEE_PERTURBATION_SCALE"); ok {
		cfg.Engine.PerturbationScale = &v
	}
	if v := os.Getenv("RDEE_STRATEGY"); v != "" {
		cfg.Engine.Strategy = v
	}
	if v, ok := getEnvInt("RDEE_MAX_NODES"); ok {
		cfg.Engine.MaxNodes = v
	}
	if v, ok := getEnvBool("RDEE_EXHAUSTIVE"); ok {
		cfg.Engine.Exhaustive = v
	}
	if v := os.Getenv("RDEE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("RDEE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v, ok := getEnvInt("RDEE_BATCH_SIZE"); ok {
		cfg.Batch.Size = v
	}
	if v, ok := getEnvInt("RDEE_WORKERS"); ok {
		cfg.Batch.Workers = v
	}
	if v := os.Getenv("RDEE_SAMPLER"); v != "" {
		cfg.Batch.Sampler = v
	}
	if v := os.Getenv("RDEE_METRICS_FILE"); v != "" {
		cfg.Batch.MetricsFile = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is set, zero included.
func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		*dst = floatPtr(*src)
	}
}

// mergeIntervals overlays src entries onto dst by key.
func mergeIntervals(dst *map[string]IntervalConfig, src map[string]IntervalConfig) {
	for name, iv := range src {
		if *dst == nil {
			*dst = make(map[string]IntervalConfig)
		}
		(*dst)[name] = iv
	}
}

// merge merges src into dst, with src values taking precedence.
// Booleans only switch on; a file cannot turn off what a lower layer enabled.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	mergeStr(&dst.LogLevel, src.LogLevel)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeEngine(&dst.Engine, &src.Engine)
	mergeStr(&dst.Storage.Backend, src.Storage.Backend)
	mergeStr(&dst.Storage.Path, src.Storage.Path)
	mergeBatch(&dst.Batch, &src.Batch)

	mergeIntervals(&dst.Stages, src.Stages)

	return dst
}

// mergeEngine merges engine-specific config fields.
func mergeEngine(dst, src *EngineConfig) {
	mergeInt(&dst.BranchingFactor, src.BranchingFactor)
	mergeFloat(&dst.PerturbationScale, src.PerturbationScale)
	mergeStr(&dst.Strategy, src.Strategy)
	mergeInt(&dst.MaxNodes, src.MaxNodes)
	if src.Exhaustive {
		dst.Exhaustive = true
	}
}

// mergeBatch merges batch-specific config fields.
func mergeBatch(dst, src *BatchConfig) {
	mergeInt(&dst.Size, src.Size)
	mergeInt(&dst.Workers, src.Workers)
	mergeStr(&dst.Sampler, src.Sampler)
	mergeStr(&dst.MetricsFile, src.MetricsFile)
	mergeIntervals(&dst.Bounds, src.Bounds)
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.rdee/config.yaml"
	SourceProject Source = ".rdee/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was set to a
// recognized value.
func getEnvBool(key string) (bool, bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

func getEnvInt(key string) (int, bool) {
	v, err := strconv.Atoi(os.Getenv(key))
	return v, err == nil
}

func getEnvFloat(key string) (float64, bool) {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	return v, err == nil
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// resolveIntField is resolveStringField for ints, zero meaning unset.
func resolveIntField(home, project int, env string, def int) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != 0 {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != 0 {
		result = resolved{Value: project, Source: SourceProject}
	}
	if v, err := strconv.Atoi(env); err == nil {
		result = resolved{Value: v, Source: SourceEnv}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output          resolved `json:"output"`
	BaseDir         resolved `json:"base_dir"`
	Verbose         resolved `json:"verbose"`
	LogLevel        resolved `json:"log_level"`
	BranchingFactor resolved `json:"branching_factor"`
	Strategy        resolved `json:"strategy"`
	MaxNodes        resolved `json:"max_nodes"`
	StorageBackend  resolved `json:"storage_backend"`
	BatchSize       resolved `json:"batch_size"`
	Sampler         resolved `json:"sampler"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagBaseDir string, flagVerbose bool) *ResolvedConfig {
	home, _ := loadFromPath(homeConfigPath())
	project, _ := loadFromPath(projectConfigPath())
	if home == nil {
		home = &Config{}
	}
	if project == nil {
		project = &Config{}
	}

	envOutput, _ := getEnvString("RDEE_OUTPUT")
	envBaseDir, _ := getEnvString("RDEE_BASE_DIR")
	envLogLevel, _ := getEnvString("RDEE_LOG_LEVEL")
	envStrategy, _ := getEnvString("RDEE_STRATEGY")
	envBackend, _ := getEnvString("RDEE_STORAGE_BACKEND")
	envSampler, _ := getEnvString("RDEE_SAMPLER")
	envVerbose, envVerboseSet := getEnvBool("RDEE_VERBOSE")

	rc := &ResolvedConfig{
		Output:          resolveStringField(home.Output, project.Output, envOutput, flagOutput, defaultOutput),
		BaseDir:         resolveStringField(home.BaseDir, project.BaseDir, envBaseDir, flagBaseDir, defaultBaseDir),
		Verbose:         resolved{Value: false, Source: SourceDefault},
		LogLevel:        resolveStringField(home.LogLevel, project.LogLevel, envLogLevel, "", defaultLogLevel),
		BranchingFactor: resolveIntField(home.Engine.BranchingFactor, project.Engine.BranchingFactor, os.Getenv("RDEE_BRANCHING_FACTOR"), defaultBranching),
		Strategy:        resolveStringField(home.Engine.Strategy, project.Engine.Strategy, envStrategy, "", defaultStrategy),
		MaxNodes:        resolveIntField(home.Engine.MaxNodes, project.Engine.MaxNodes, os.Getenv("RDEE_MAX_NODES"), defaultMaxNodes),
		StorageBackend:  resolveStringField(home.Storage.Backend, project.Storage.Backend, envBackend, "", defaultBackend),
		BatchSize:       resolveIntField(home.Batch.Size, project.Batch.Size, os.Getenv("RDEE_BATCH_SIZE"), defaultBatchSize),
		Sampler:         resolveStringField(home.Batch.Sampler, project.Batch.Sampler, envSampler, "", defaultSampler),
	}

	// Resolve verbose (boolean with OR semantics through chain)
	if home.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if project.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerboseSet {
		rc.Verbose = resolved{Value: envVerbose, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
