package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/formatter"
	"github.com/boshu2/rdee/internal/validation"
)

var (
	validatePreset string
	validateSets   []string
	validateDepth  int
)

// errInvalidParameters is returned after violations have been printed.
var errInvalidParameters = errors.New("parameter set is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate [params-file]",
	Short: "Check a parameter set against physical and sanity constraints",
	Long: `Run schema, physical and sanity checks on a parameter file or preset and
report every violation. Exits non-zero when any check fails.

Examples:
  rdee validate params.yaml
  rdee validate --preset earth --set stellar.stellar_mass=30`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validatePreset, "preset", "earth", "Parameter preset when no file is given (earth, default)")
	validateCmd.Flags().StringArrayVar(&validateSets, "set", nil, "Override a value (path=value, repeatable)")
	validateCmd.Flags().IntVar(&validateDepth, "depth", 0, "Override the recursive depth limit")
}

type violationRow struct {
	Kind    string `json:"kind" yaml:"kind"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Message string `json:"message" yaml:"message"`
}

type validateResult struct {
	Valid      bool           `json:"valid" yaml:"valid"`
	Violations []violationRow `json:"violations,omitempty" yaml:"violations,omitempty"`
}

func violationKind(v *validation.Violation) string {
	switch {
	case errors.Is(v.Kind, validation.ErrSchema):
		return "schema"
	case errors.Is(v.Kind, validation.ErrPhysical):
		return "physical"
	case errors.Is(v.Kind, validation.ErrSanity):
		return "sanity"
	}
	return "other"
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	var file string
	if len(args) == 1 {
		file = args[0]
	}
	set, _, err := loadParams(file, validatePreset, validateSets, validateDepth)
	if err != nil {
		return err
	}

	res := validateResult{Valid: true}
	if verr := validation.Validate(set); verr != nil {
		res.Valid = false
		var pe *validation.PipelineError
		if !errors.As(verr, &pe) {
			return verr
		}
		for _, e := range pe.Errors {
			var v *validation.Violation
			if errors.As(e, &v) {
				res.Violations = append(res.Violations, violationRow{Kind: violationKind(v), Path: v.Path, Message: v.Msg})
				continue
			}
			res.Violations = append(res.Violations, violationRow{Kind: "other", Message: e.Error()})
		}
	}

	w := cmd.OutOrStdout()
	handled, err := writeStructured(w, cfg.Output, res)
	if err != nil {
		return err
	}
	if !handled {
		if res.Valid {
			fmt.Fprintln(w, "✓ Parameter set is valid")
			return nil
		}
		tbl := formatter.NewTable(w, "KIND", "PATH", "PROBLEM")
		tbl.SetMaxWidth(2, 80)
		for _, v := range res.Violations {
			tbl.AddRow(v.Kind, v.Path, v.Message)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	if !res.Valid {
		return fmt.Errorf("%w: %d violation(s)", errInvalidParameters, len(res.Violations))
	}
	return nil
}
