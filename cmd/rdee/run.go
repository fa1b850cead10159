package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/config"
	"github.com/boshu2/rdee/internal/engine"
	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/storage"
	"github.com/boshu2/rdee/internal/trace"
	"github.com/boshu2/rdee/internal/validation"
)

var (
	runParams     string
	runPreset     string
	runSets       []string
	runDepth      int
	runSeed       string
	runBranching  int
	runScale      float64
	runStrategy   string
	runExhaustive bool
	runMaxNodes   int
	runSave       bool
	runRecords    bool
	runNoValidate bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate one root configuration",
	Long: `Run the six survival stages on a parameter set, then recurse into
perturbed children until the depth limit. Prints the verdict, the collapse
stage when the run failed, and per-stage tallies.

Examples:
  rdee run                                  # Earth preset, random seed
  rdee run --seed 42 --depth 4 --records    # Reproducible, with every stage record
  rdee run --params my.yaml --strategy gaussian --save
  rdee run --set stellar.stellar_mass=1.2 -o json`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addParamFlags(runCmd, &runParams, &runPreset, &runSets, &runDepth)
	addEngineFlags(runCmd)
	runCmd.Flags().StringVar(&runSeed, "seed", "", "Root seed (default: random, recorded in the trace)")
	runCmd.Flags().BoolVar(&runSave, "save", false, "Persist the trace to storage")
	runCmd.Flags().BoolVar(&runRecords, "records", false, "Print every stage record")
	runCmd.Flags().BoolVar(&runNoValidate, "no-validate", false, "Skip physical and sanity validation")
}

func addParamFlags(cmd *cobra.Command, file, preset *string, sets *[]string, depth *int) {
	cmd.Flags().StringVar(file, "params", "", "Parameter file (YAML or JSON)")
	cmd.Flags().StringVar(preset, "preset", "earth", "Parameter preset when no file is given (earth, default)")
	cmd.Flags().StringArrayVar(sets, "set", nil, "Override a value (path=value, repeatable)")
	cmd.Flags().IntVar(depth, "depth", 0, "Override the recursive depth limit")
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&runBranching, "branching", 0, "Children per surviving branch")
	cmd.Flags().Float64Var(&runScale, "scale", 0, "Perturbation scale")
	cmd.Flags().StringVar(&runStrategy, "strategy", "", "Perturbation strategy (uniform, gaussian)")
	cmd.Flags().BoolVar(&runExhaustive, "exhaustive", false, "Explore every child instead of stopping at the first survivor")
	cmd.Flags().IntVar(&runMaxNodes, "max-nodes", 0, "Node budget per root run")
}

// engineOverrides carries the engine flags into configuration. --scale
// overrides only when given, so --scale 0 is honored.
func engineOverrides(cmd *cobra.Command) *config.Config {
	o := &config.Config{Engine: config.EngineConfig{
		BranchingFactor: runBranching,
		Strategy:        runStrategy,
		Exhaustive:      runExhaustive,
		MaxNodes:        runMaxNodes,
	}}
	if cmd.Flags().Changed("scale") {
		scale := runScale
		o.Engine.PerturbationScale = &scale
	}
	return o
}

// loadParams reads a file or preset, then applies --set and --depth.
// It returns the set and its provenance source label.
func loadParams(file, preset string, sets []string, depth int) (*params.Set, string, error) {
	var set *params.Set
	source := "file"
	if file != "" {
		s, err := params.Load(file)
		if err != nil {
			return nil, "", err
		}
		set = s
	} else {
		s, ok := params.Preset(preset)
		if !ok {
			return nil, "", fmt.Errorf("unknown preset %q (want earth or default)", preset)
		}
		set = s
		source = "preset:" + preset
	}

	for _, kv := range sets {
		path, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, "", fmt.Errorf("--set %q: want path=value", kv)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, "", fmt.Errorf("--set %q: %w", kv, err)
		}
		if err := set.SetPath(strings.TrimSpace(path), v); err != nil {
			return nil, "", fmt.Errorf("--set %q: %w", kv, err)
		}
	}
	if depth != 0 {
		if err := set.SetPath("sampling.recursive_depth_limit", float64(depth)); err != nil {
			return nil, "", err
		}
	}
	return set, source, nil
}

func parseSeed(s string) (*uint64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seed %q: %w", s, err)
	}
	return &v, nil
}

func randomSeed() uint64 {
	return rand.Uint64()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(engineOverrides(cmd))
	if err != nil {
		return err
	}
	set, source, err := loadParams(runParams, runPreset, runSets, runDepth)
	if err != nil {
		return err
	}
	if !runNoValidate {
		if err := validation.Validate(set); err != nil {
			return err
		}
	}

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	seed, err := parseSeed(runSeed)
	if err != nil {
		return err
	}
	if seed != nil {
		opts = append(opts, engine.WithSeed(*seed))
	}

	tr, err := engine.Simulate(cmd.Context(), set, opts...)
	if err != nil {
		return err
	}

	var savedPath string
	if runSave {
		savedPath, err = saveTrace(cfg, tr, source, runParams)
		if err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if handled, err := writeTraceOutput(w, cfg.Output, tr, tr); handled {
		return err
	}
	if err := printTrace(w, tr, runRecords); err != nil {
		return err
	}
	if savedPath != "" {
		fmt.Fprintf(w, "\nSaved: %s\n", savedPath)
	}
	return nil
}

// saveTrace writes tr and its provenance record.
func saveTrace(cfg *config.Config, tr *trace.Trace, source, sourcePath string) (string, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return "", err
	}
	defer store.Close()

	path, err := store.WriteTrace(tr)
	if err != nil {
		return "", err
	}
	rec := &storage.ProvenanceRecord{
		ID:         uuid.NewString(),
		RunID:      tr.RunID,
		Source:     source,
		SourcePath: sourcePath,
		Seed:       tr.Seed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.WriteProvenance(rec); err != nil {
		return "", err
	}
	if path == "" {
		path = tr.RunID
	}
	return path, nil
}

func verdict(tr *trace.Trace) string {
	if name, collapsed := tr.Collapsed(); collapsed {
		return fmt.Sprintf("COLLAPSED at %s", name)
	}
	if !tr.Finalized {
		return "PENDING"
	}
	return "SURVIVED"
}

// printTrace writes the human-readable run summary.
func printTrace(w io.Writer, tr *trace.Trace, records bool) error {
	fmt.Fprintf(w, "Run:      %s\n", tr.RunID)
	fmt.Fprintf(w, "Seed:     %d\n", tr.Seed)
	fmt.Fprintf(w, "Verdict:  %s\n", verdict(tr))
	fmt.Fprintf(w, "Depth:    %d  Nodes: %d  Surviving leaves: %d\n", tr.RecursionDepth, tr.NodesEvaluated, tr.SurvivingLeaves)
	fmt.Fprintf(w, "Duration: %s\n", tr.Duration().Round(time.Microsecond))
	fmt.Fprintln(w)

	tbl := formatter.NewTable(w, "STAGE", "ATTEMPTS", "FAILURES")
	for _, sc := range tr.StageCounts() {
		tbl.AddValues(sc.Stage, sc.Attempts, sc.Failures)
	}
	if err := tbl.Render(); err != nil {
		return err
	}

	if !records {
		return nil
	}
	fmt.Fprintln(w)
	rec := formatter.NewTable(w, "#", "DEPTH", "PATH", "STAGE", "RESULT", "FAULT")
	rec.SetMaxWidth(5, 60)
	for i, r := range tr.Records {
		path := r.Path
		if path == "" {
			path = "root"
		}
		result := "pass"
		if !r.Survived {
			result = "fail"
		}
		rec.AddValues(i, r.Depth, path, r.Stage, result, r.Fault)
	}
	return rec.Render()
}
