package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/rdee/internal/bifurcation"
	"github.com/boshu2/rdee/internal/config"
	"github.com/boshu2/rdee/internal/engine"
	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/stage"
	"github.com/boshu2/rdee/internal/storage"
	"github.com/boshu2/rdee/internal/trace"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
	baseDir string

	logger = slog.New(slog.DiscardHandler)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "rdee",
	Short: "Recursive divergence evaluation engine",
	Long: `rdee evaluates whether a parameter set survives six ordered stages
(cosmological, stellar, planetary, habitability, prebiotic, evolutionary),
then recursively perturbs surviving sets into child branches until a depth
limit. A root run survives if any branch reaches the limit alive.

Simulation:
  run       Evaluate one root configuration
  batch     Run sampled configurations over a worker pool
  earth     Run the Earth baseline repeatedly
  sweep     Run a parameter grid

Parameters:
  params    Print a parameter template
  validate  Check a parameter file against physical and sanity constraints

Results:
  list      List stored runs
  show      Show a stored run
  config    Show resolved configuration
  version   Show version information`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (json, table, yaml, jsonl)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .rdee/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Run storage directory (default: .rdee/runs)")
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

// GetOutput returns the output flag; empty defers to configuration.
func GetOutput() string {
	return output
}

// GetConfigFile returns the config file path for use by subcommands.
func GetConfigFile() string {
	return cfgFile
}

// VerbosePrintf prints to stderr only when verbose mode is enabled.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(GetConfigFile())
	if path == "" {
		return
	}
	_ = os.Setenv("RDEE_CONFIG", path)
}

// loadConfig resolves configuration with the global flags and overrides
// applied, and rebuilds the logger from it.
func loadConfig(overrides *config.Config) (*config.Config, error) {
	if overrides == nil {
		overrides = &config.Config{}
	}
	overrides.Output = GetOutput()
	overrides.BaseDir = baseDir
	overrides.Verbose = GetVerbose()

	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, err
	}
	logger = newLogger(os.Stderr, cfg)
	return cfg, nil
}

// newLogger builds the stderr text logger. Verbose forces debug.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// engineOptions translates engine configuration and stage overrides.
func engineOptions(cfg *config.Config) ([]engine.Option, error) {
	strategy, err := bifurcation.ParseStrategy(cfg.Engine.Strategy)
	if err != nil {
		return nil, err
	}
	ranges, err := stage.DefaultRanges().Apply(cfg.Intervals())
	if err != nil {
		return nil, fmt.Errorf("stage overrides: %w", err)
	}
	return []engine.Option{
		engine.WithBranching(bifurcation.Config{
			BranchingFactor: cfg.Engine.BranchingFactor,
			Scale:           cfg.Engine.Scale(),
			Strategy:        strategy,
		}),
		engine.WithRanges(ranges),
		engine.WithExhaustive(cfg.Engine.Exhaustive),
		engine.WithMaxNodes(cfg.Engine.MaxNodes),
		engine.WithLogger(logger),
	}, nil
}

// openStorage opens the configured backend under the base directory.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = cfg.BaseDir
		if cfg.Storage.Backend == storage.BackendBadger {
			path = filepath.Join(cfg.BaseDir, "badger")
		}
	}
	VerbosePrintf("Opening %s storage at %s\n", cfg.Storage.Backend, path)
	return storage.Open(storage.Config{Backend: cfg.Storage.Backend, Path: path, Logger: logger})
}

// writeStructured encodes v for json and yaml output and reports whether it
// handled the format.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	case "jsonl":
		return true, json.NewEncoder(w).Encode(v)
	}
	return false, nil
}

// writeTraceOutput handles structured output for a single trace. jsonl
// streams one line per stage record.
func writeTraceOutput(w io.Writer, format string, tr *trace.Trace, v any) (bool, error) {
	if format == "jsonl" {
		return true, formatter.NewJSONLFormatter().FormatRecords(w, tr)
	}
	return writeStructured(w, format, v)
}
