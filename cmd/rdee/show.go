package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/storage"
)

var (
	showMarkdown bool
	showRecords  bool
)

var errAmbiguousRunID = errors.New("run ID prefix is ambiguous")

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run",
	Long: `Show a stored trace by run ID or unique run ID prefix, with its
provenance.

Examples:
  rdee show 3f2a9c1e
  rdee show 3f2a9c1e --records
  rdee show 3f2a9c1e --markdown > report.md`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showMarkdown, "markdown", false, "Render a markdown report")
	showCmd.Flags().BoolVar(&showRecords, "records", false, "Print every stage record")
}

// resolveRunID expands a unique prefix against the index.
func resolveRunID(store storage.Storage, id string) (string, error) {
	entries, err := store.ListTraces()
	if err != nil {
		return "", err
	}
	var match string
	for _, e := range entries {
		if e.RunID == id {
			return id, nil
		}
		if strings.HasPrefix(e.RunID, id) {
			if match != "" && match != e.RunID {
				return "", fmt.Errorf("%w: %s", errAmbiguousRunID, id)
			}
			match = e.RunID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", storage.ErrTraceNotFound, id)
	}
	return match, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveRunID(store, args[0])
	if err != nil {
		return err
	}
	tr, err := store.ReadTrace(id)
	if err != nil {
		return err
	}
	if err := tr.Verify(); err != nil {
		return fmt.Errorf("stored trace %s: %w", id, err)
	}
	prov, err := store.QueryProvenance(id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if showMarkdown {
		md := formatter.NewMarkdownFormatter()
		if showRecords {
			md.MaxRecords = -1
		}
		return md.Format(w, tr)
	}
	view := struct {
		Trace      any `json:"trace" yaml:"trace"`
		Provenance any `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	}{tr, prov}
	if handled, err := writeTraceOutput(w, cfg.Output, tr, view); handled {
		return err
	}

	if err := printTrace(w, tr, showRecords); err != nil {
		return err
	}
	for _, p := range prov {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Source:   %s\n", p.Source)
		if p.SourcePath != "" {
			fmt.Fprintf(w, "File:     %s\n", p.SourcePath)
		}
		if p.BatchID != "" {
			fmt.Fprintf(w, "Batch:    %s\n", p.BatchID)
		}
		fmt.Fprintf(w, "Recorded: %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
