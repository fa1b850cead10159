package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/stage"
	"github.com/boshu2/rdee/internal/storage"
)

var (
	listLimit     int
	listCollapsed bool
	listSurvived  bool
	listStage     string
)

var errUnknownStage = errors.New("unknown stage")

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	Long: `List indexed runs, newest first.

Examples:
  rdee list
  rdee list --collapsed --limit 50
  rdee list --stage stellar
  rdee list -o json`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum runs to show (0 = all)")
	listCmd.Flags().BoolVar(&listCollapsed, "collapsed", false, "Only collapsed runs")
	listCmd.Flags().BoolVar(&listSurvived, "survived", false, "Only surviving runs")
	listCmd.Flags().StringVar(&listStage, "stage", "", "Only runs that collapsed at this stage")
}

// filterEntries reverses entries to newest first, filters and truncates.
// A non-empty collapseAt keeps only runs that collapsed at that stage.
func filterEntries(entries []storage.IndexEntry, limit int, collapsed, survived bool, collapseAt stage.Name) []storage.IndexEntry {
	out := make([]storage.IndexEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if collapsed && e.Survived || survived && !e.Survived {
			continue
		}
		if collapseAt != "" && (e.Survived || stage.Name(e.CollapseStage) != collapseAt) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func runList(cmd *cobra.Command, args []string) error {
	var collapseAt stage.Name
	if listStage != "" {
		if collapseAt = stage.ParseName(listStage); collapseAt == "" {
			return fmt.Errorf("%w: %q", errUnknownStage, listStage)
		}
	}
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ListTraces()
	if err != nil {
		return err
	}
	entries = filterEntries(entries, listLimit, listCollapsed, listSurvived, collapseAt)

	w := cmd.OutOrStdout()
	if handled, err := writeStructured(w, cfg.Output, entries); handled {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	tbl := formatter.NewTable(w, "RUN", "DATE", "VERDICT", "DEPTH", "NODES")
	for _, e := range entries {
		v := "survived"
		if !e.Survived {
			v = "collapsed at " + e.CollapseStage
		}
		tbl.AddValues(e.RunID[:min(8, len(e.RunID))], e.Date.Format("2006-01-02 15:04"), v, e.RecursionDepth, e.Nodes)
	}
	return tbl.Render()
}
