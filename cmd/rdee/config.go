package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/config"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View rdee configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (RDEE_*)
  3. Project config (.rdee/config.yaml)
  4. Home config (~/.rdee/config.yaml)
  5. Defaults

Environment variables:
  RDEE_CONFIG             - Explicit config file path (overrides the project config location)
  RDEE_OUTPUT             - Default output format (table, json, yaml)
  RDEE_BASE_DIR           - Run storage directory
  RDEE_VERBOSE            - Enable verbose output (true/1)
  RDEE_LOG_LEVEL          - Log level (debug, info, warn, error)
  RDEE_BRANCHING_FACTOR   - Children per surviving branch (default: 2)
  RDEE_PERTURBATION_SCALE - Perturbation scale (default: 0.05)
  RDEE_STRATEGY           - Perturbation strategy (uniform, gaussian)
  RDEE_MAX_NODES          - Node budget per root run (default: 1000000)
  RDEE_EXHAUSTIVE         - Explore every child (true/1)
  RDEE_STORAGE_BACKEND    - Trace backend (file, badger)
  RDEE_STORAGE_PATH       - Backend location
  RDEE_BATCH_SIZE         - Default batch size (default: 100)
  RDEE_WORKERS            - Batch workers (default: NumCPU)
  RDEE_SAMPLER            - Batch sampler (uniform, natural)
  RDEE_METRICS_FILE       - Prometheus textfile written after each batch

Examples:
  rdee config --show           # Show resolved configuration
  rdee config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	resolved := config.Resolve(GetOutput(), baseDir, GetVerbose())
	w := cmd.OutOrStdout()

	if handled, err := writeStructured(w, GetOutput(), resolved); handled {
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return nil
	}

	fmt.Fprintln(w, "rdee Configuration")
	fmt.Fprintln(w, "==================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config files:")
	homeConfig, projectConfig := config.ConfigPaths()
	for _, f := range []struct{ label, path string }{{"Home:   ", homeConfig}, {"Project:", projectConfig}} {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Fprintf(w, "  ✓ %s %s\n", f.label, f.path)
		} else {
			fmt.Fprintf(w, "  ✗ %s %s (not found)\n", f.label, f.path)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolved values:")
	rows := []struct {
		key string
		val any
		src config.Source
	}{
		{"output", resolved.Output.Value, resolved.Output.Source},
		{"base_dir", resolved.BaseDir.Value, resolved.BaseDir.Source},
		{"verbose", resolved.Verbose.Value, resolved.Verbose.Source},
		{"log_level", resolved.LogLevel.Value, resolved.LogLevel.Source},
		{"engine.branching_factor", resolved.BranchingFactor.Value, resolved.BranchingFactor.Source},
		{"engine.strategy", resolved.Strategy.Value, resolved.Strategy.Source},
		{"engine.max_nodes", resolved.MaxNodes.Value, resolved.MaxNodes.Source},
		{"storage.backend", resolved.StorageBackend.Value, resolved.StorageBackend.Source},
		{"batch.size", resolved.BatchSize.Value, resolved.BatchSize.Source},
		{"batch.sampler", resolved.Sampler.Value, resolved.Sampler.Source},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-24s %v  (from %s)\n", r.key+":", r.val, r.src)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables (if set):")
	envVars := []string{
		"RDEE_CONFIG", "RDEE_OUTPUT", "RDEE_BASE_DIR", "RDEE_VERBOSE",
		"RDEE_LOG_LEVEL", "RDEE_BRANCHING_FACTOR", "RDEE_PERTURBATION_SCALE",
		"RDEE_STRATEGY", "RDEE_MAX_NODES", "RDEE_EXHAUSTIVE",
		"RDEE_STORAGE_BACKEND", "RDEE_STORAGE_PATH", "RDEE_BATCH_SIZE",
		"RDEE_WORKERS", "RDEE_SAMPLER", "RDEE_METRICS_FILE",
	}
	anySet := false
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			fmt.Fprintf(w, "  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Fprintln(w, "  (none set)")
	}

	return nil
}
