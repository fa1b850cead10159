package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/batch"
	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/params"
)

var (
	sweepFile   string
	sweepParams string
	sweepPreset string
	sweepSets   []string
	sweepDepth  int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a parameter grid",
	Long: `Expand a base parameter set into the cartesian product of the values
in a sweep file and run every combination as a batch.

A sweep file maps dot paths to value lists or ranges:

  stellar.stellar_mass: [0.8, 1.0, 1.2]
  planetary.planet_distance: {start: 0.8, stop: 1.4, step: 0.2}

Examples:
  rdee sweep --sweep mass.yaml --seed 3
  rdee sweep --sweep grid.yaml --params base.yaml --depth 5 -o json`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepFile, "sweep", "", "Sweep file (YAML or JSON)")
	_ = sweepCmd.MarkFlagRequired("sweep")
	addParamFlags(sweepCmd, &sweepParams, &sweepPreset, &sweepSets, &sweepDepth)
	addEngineFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent runs (default: NumCPU)")
	sweepCmd.Flags().StringVar(&batchSeed, "seed", "", "Batch seed (default: random)")
	sweepCmd.Flags().BoolVar(&batchNoSave, "no-save", false, "Do not persist traces")
	sweepCmd.Flags().BoolVar(&batchNoValidate, "no-validate", false, "Skip physical and sanity validation")
	sweepCmd.Flags().StringVar(&batchMetricsFile, "metrics-file", "", "Write Prometheus textfile metrics after the sweep")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(batchOverrides(cmd))
	if err != nil {
		return err
	}
	base, _, err := loadParams(sweepParams, sweepPreset, sweepSets, sweepDepth)
	if err != nil {
		return err
	}
	sweep, err := params.LoadSweep(sweepFile)
	if err != nil {
		return err
	}
	grid, err := params.Grid(base, sweep)
	if err != nil {
		return err
	}
	VerbosePrintf("Sweep expands to %d configurations\n", len(grid))

	units := batch.Sets("sweep", sweepFile, grid)
	for i := range units {
		units[i].Metadata = sweepPoint(units[i].Set, sweep)
	}

	seed, err := parseSeed(batchSeed)
	if err != nil {
		return err
	}
	return executeBatch(cmd, cfg, units, seed, func(w io.Writer, sum *batch.Summary) error {
		if err := printSummary(w, sum, false); err != nil {
			return err
		}
		return printSweep(w, sum, units, sweep)
	})
}

// sweepPoint returns the swept values of set keyed by path.
func sweepPoint(set *params.Set, sweep map[string][]float64) map[string]any {
	point := make(map[string]any, len(sweep))
	for path := range sweep {
		if spec, err := set.Lookup(path); err == nil && spec.HasValue() {
			point[path] = *spec.Value
		}
	}
	return point
}

// printSweep lists every grid point with its outcome.
func printSweep(w io.Writer, sum *batch.Summary, units []batch.Unit, sweep map[string][]float64) error {
	paths := make([]string, 0, len(sweep))
	for p := range sweep {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fmt.Fprintln(w)
	headers := append([]string{"UNIT"}, paths...)
	headers = append(headers, "VERDICT")
	tbl := formatter.NewTable(w, headers...)
	for _, res := range sum.Results {
		row := []string{strconv.Itoa(res.Index)}
		for _, p := range paths {
			row = append(row, fmt.Sprint(units[res.Index].Metadata[p]))
		}
		switch {
		case res.Trace != nil:
			row = append(row, verdict(res.Trace))
		default:
			row = append(row, "ERROR ("+string(res.FailedAt)+")")
		}
		tbl.AddRow(row...)
	}
	return tbl.Render()
}
