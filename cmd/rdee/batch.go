package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/batch"
	"github.com/boshu2/rdee/internal/config"
	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/monitor"
	"github.com/boshu2/rdee/internal/sampling"
	"github.com/boshu2/rdee/internal/storage"
)

var (
	batchSize        int
	batchWorkers     int
	batchSeed        string
	batchSampler     string
	batchNoSave      bool
	batchNoValidate  bool
	batchMetricsFile string
	batchShowRuns    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run sampled configurations over a worker pool",
	Long: `Draw parameter sets from a sampler and run each through validation,
the engine and storage. Units that fail validation or storage are reported
and never abort the batch.

Samplers:
  uniform   Every bounded parameter drawn uniformly from its schema bounds,
            narrowed by the stages section of the config
  natural   Physically motivated distributions (normal, lognormal, beta,
            poisson, exponential)

Examples:
  rdee batch --size 500 --seed 7
  rdee batch --sampler natural --workers 4 --metrics-file rdee.prom`,
	RunE: runBatch,
}

var earthCmd = &cobra.Command{
	Use:   "earth",
	Short: "Run the Earth baseline repeatedly",
	Long: `Run the Earth preset --size times. Stochastic stages make the
outcome vary between runs; the survival ratio estimates how often an
Earth-like configuration survives the full recursion.

Examples:
  rdee earth --size 50 --seed 1`,
	RunE: runEarth,
}

func init() {
	rootCmd.AddCommand(batchCmd, earthCmd)
	for _, cmd := range []*cobra.Command{batchCmd, earthCmd} {
		addBatchFlags(cmd)
		addEngineFlags(cmd)
	}
	batchCmd.Flags().StringVar(&batchSampler, "sampler", "", "Sampler (uniform, natural)")
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&batchSize, "size", 0, "Number of root runs (default: batch.size)")
	cmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent runs (default: NumCPU)")
	cmd.Flags().StringVar(&batchSeed, "seed", "", "Batch seed (default: random)")
	cmd.Flags().BoolVar(&batchNoSave, "no-save", false, "Do not persist traces")
	cmd.Flags().BoolVar(&batchNoValidate, "no-validate", false, "Skip physical and sanity validation")
	cmd.Flags().StringVar(&batchMetricsFile, "metrics-file", "", "Write Prometheus textfile metrics after the batch")
	cmd.Flags().BoolVar(&batchShowRuns, "runs", false, "List every unit in table output")
}

func batchOverrides(cmd *cobra.Command) *config.Config {
	o := engineOverrides(cmd)
	o.Batch = config.BatchConfig{
		Size:        batchSize,
		Workers:     batchWorkers,
		Sampler:     batchSampler,
		MetricsFile: batchMetricsFile,
	}
	return o
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(batchOverrides(cmd))
	if err != nil {
		return err
	}
	seed, err := batchSeedValue()
	if err != nil {
		return err
	}
	fn, err := sampling.Parse(cfg.Batch.Sampler, cfg.SampleBounds())
	if err != nil {
		return err
	}
	units, err := batch.Sampled(cfg.Batch.Size, seed, cfg.Batch.Sampler, fn)
	if err != nil {
		return err
	}
	return executeBatch(cmd, cfg, units, &seed, printBatch)
}

func runEarth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(batchOverrides(cmd))
	if err != nil {
		return err
	}
	units, err := batch.Earth(cfg.Batch.Size)
	if err != nil {
		return err
	}
	seed, err := parseSeed(batchSeed)
	if err != nil {
		return err
	}
	return executeBatch(cmd, cfg, units, seed, printBatch)
}

// batchSeedValue returns the --seed value or a fresh one. Sampling needs a
// concrete seed up front so the batch can be reproduced from the output.
func batchSeedValue() (uint64, error) {
	seed, err := parseSeed(batchSeed)
	if err != nil {
		return 0, err
	}
	if seed == nil {
		return randomSeed(), nil
	}
	return *seed, nil
}

// executeBatch runs units, exports metrics and writes the summary. Table
// output goes through print.
func executeBatch(cmd *cobra.Command, cfg *config.Config, units []batch.Unit, seed *uint64, print func(io.Writer, *batch.Summary) error) error {
	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}

	var store storage.Storage
	if !batchNoSave {
		store, err = openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	runner := batch.NewRunner(batch.Config{
		Workers:        cfg.Batch.Workers,
		Seed:           seed,
		Engine:         opts,
		Storage:        store,
		Monitor:        monitor.New(reg),
		SkipValidation: batchNoValidate,
		Logger:         logger,
	})

	sum, runErr := runner.Run(cmd.Context(), units)
	if sum == nil {
		return runErr
	}

	if cfg.Batch.MetricsFile != "" {
		if err := monitor.WriteTextfile(cfg.Batch.MetricsFile, reg); err != nil {
			return errors.Join(runErr, err)
		}
		VerbosePrintf("Metrics written to %s\n", cfg.Batch.MetricsFile)
	}

	w := cmd.OutOrStdout()
	if handled, err := writeStructured(w, cfg.Output, sum); handled {
		return errors.Join(runErr, err)
	}
	return errors.Join(runErr, print(w, sum))
}

func printBatch(w io.Writer, sum *batch.Summary) error {
	return printSummary(w, sum, batchShowRuns)
}

// printSummary writes the batch report and any failed units.
func printSummary(w io.Writer, sum *batch.Summary, runs bool) error {
	r := sum.Report
	fmt.Fprintf(w, "Batch:      %s\n", sum.BatchID)
	fmt.Fprintf(w, "Seed:       %d\n", sum.Seed)
	fmt.Fprintf(w, "Runs:       %d (valid %d, invalid %d, engine errors %d)\n", r.TotalRuns, r.ValidRuns, r.FailedValidations, r.EngineErrors)
	fmt.Fprintf(w, "Survived:   %d / %d (ratio %.3f)\n", r.SurvivedRuns, r.SurvivedRuns+r.CollapsedRuns, r.SurvivalRatio)
	fmt.Fprintf(w, "Avg depth:  %.2f\n", r.AverageRecursionDepth)
	if r.SuccessfulStorage+r.StorageFailures > 0 {
		fmt.Fprintf(w, "Stored:     %d (failed %d)\n", r.SuccessfulStorage, r.StorageFailures)
	}
	fmt.Fprintf(w, "Elapsed:    %s\n", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))

	if len(r.CollapseStages) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "COLLAPSE STAGE", "RUNS")
		for _, sc := range r.CollapseStages {
			tbl.AddValues(sc.Stage, sc.Count)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}

	if failed := sum.Failed(); len(failed) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "UNIT", "PHASE", "ERROR")
		tbl.SetMaxWidth(2, 80)
		for _, f := range failed {
			tbl.AddValues(f.Index, f.FailedAt, f.Error)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}

	if !runs {
		return nil
	}
	fmt.Fprintln(w)
	tbl := formatter.NewTable(w, "UNIT", "RUN", "VERDICT", "DEPTH", "NODES")
	for _, res := range sum.Results {
		if res.Trace == nil {
			continue
		}
		tbl.AddValues(res.Index, res.RunID, verdict(res.Trace), res.Trace.RecursionDepth, res.Trace.NodesEvaluated)
	}
	return tbl.Render()
}
