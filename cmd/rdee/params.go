package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/params"
)

var (
	paramsPreset string
	paramsPaths  bool
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print a parameter template",
	Long: `Print a preset as a parameter document that run --params loads back.
With --paths, list every dot path with its bounds and units instead.

Examples:
  rdee params > params.yaml
  rdee params --preset default -o json
  rdee params --paths`,
	RunE: runParamsTemplate,
}

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.Flags().StringVar(&paramsPreset, "preset", "earth", "Preset to print (earth, default)")
	paramsCmd.Flags().BoolVar(&paramsPaths, "paths", false, "List parameter paths with bounds")
}

func runParamsTemplate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	set, ok := params.Preset(paramsPreset)
	if !ok {
		return fmt.Errorf("unknown preset %q (want earth or default)", paramsPreset)
	}
	w := cmd.OutOrStdout()

	if paramsPaths {
		tbl := formatter.NewTable(w, "PATH", "TYPE", "MIN", "MAX", "VALUE", "UNITS")
		err := set.Walk(func(path string, spec *params.Spec) error {
			tbl.AddRow(path, string(spec.Datatype), optional(spec.Min), optional(spec.Max), optional(spec.Value), spec.Units)
			return nil
		})
		if err != nil {
			return err
		}
		return tbl.Render()
	}

	if cfg.Output == "json" {
		_, err := writeStructured(w, "json", set)
		return err
	}
	return params.Encode(w, set)
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
