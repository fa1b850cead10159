package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/rdee/internal/batch"
	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/stage"
	"github.com/boshu2/rdee/internal/storage"
	"github.com/boshu2/rdee/internal/trace"
	"github.com/boshu2/rdee/internal/validation"
)

// setupCLI isolates config lookup, points storage at a temp dir and
// restores every flag variable afterwards.
func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RDEE_CONFIG", "")
	dir := t.TempDir()
	t.Chdir(dir)

	reset := func() {
		verbose, output, cfgFile, baseDir = false, "", "", ""
		runParams, runPreset, runSets, runDepth, runSeed = "", "earth", nil, 0, ""
		runBranching, runScale, runStrategy, runExhaustive, runMaxNodes = 0, 0, "", false, 0
		runSave, runRecords, runNoValidate = false, false, false
		batchSize, batchWorkers, batchSeed, batchSampler = 0, 0, "", ""
		batchNoSave, batchNoValidate, batchMetricsFile, batchShowRuns = false, false, "", false
		sweepFile, sweepParams, sweepPreset, sweepSets, sweepDepth = "", "", "earth", nil, 0
		validatePreset, validateSets, validateDepth = "earth", nil, 0
		paramsPreset, paramsPaths = "earth", false
		showMarkdown, showRecords = false, false
		listLimit, listCollapsed, listSurvived, listStage = 20, false, false, ""
		configShow = false
	}
	reset()
	t.Cleanup(reset)

	baseDir = filepath.Join(dir, "runs")
	return dir
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestRunJSON(t *testing.T) {
	setupCLI(t)
	output = "json"
	runSeed = "42"
	runDepth = 3

	cmd, out := newTestCmd()
	if err := runRun(cmd, nil); err != nil {
		t.Fatalf("runRun: %v", err)
	}

	var tr trace.Trace
	if err := json.Unmarshal(out.Bytes(), &tr); err != nil {
		t.Fatalf("expected JSON trace, got %q: %v", out.String(), err)
	}
	if tr.Seed != 42 {
		t.Errorf("Seed = %d, want 42", tr.Seed)
	}
	if !tr.Finalized {
		t.Error("trace not finalized")
	}
	if tr.RecursionDepth > 2 {
		t.Errorf("RecursionDepth = %d, want at most depth limit - 1", tr.RecursionDepth)
	}
	if err := tr.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestRunJSONLStreamsRecords(t *testing.T) {
	setupCLI(t)
	output = "jsonl"
	runSeed = "42"
	runDepth = 2

	cmd, out := newTestCmd()
	if err := runRun(cmd, nil); err != nil {
		t.Fatalf("runRun: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("expected at least one record line")
	}
	runID := ""
	for i, line := range lines {
		var rec struct {
			RunID string `json:"run_id"`
			Seq   int    `json:"seq"`
			Stage string `json:"stage"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d not JSON: %q: %v", i, line, err)
		}
		if rec.Seq != i {
			t.Errorf("line %d seq = %d", i, rec.Seq)
		}
		if rec.Stage == "" {
			t.Errorf("line %d has no stage", i)
		}
		if runID == "" {
			runID = rec.RunID
		} else if rec.RunID != runID {
			t.Errorf("line %d run_id = %q, want %q", i, rec.RunID, runID)
		}
	}
}

func TestRunSameSeedSameOutcome(t *testing.T) {
	setupCLI(t)
	output = "json"
	runSeed = "9"
	runDepth = 4

	decode := func() trace.Trace {
		cmd, out := newTestCmd()
		if err := runRun(cmd, nil); err != nil {
			t.Fatalf("runRun: %v", err)
		}
		var tr trace.Trace
		if err := json.Unmarshal(out.Bytes(), &tr); err != nil {
			t.Fatal(err)
		}
		return tr
	}
	a, b := decode(), decode()
	if a.FinalSurvival != b.FinalSurvival || len(a.Records) != len(b.Records) || a.NodesEvaluated != b.NodesEvaluated {
		t.Errorf("same seed gave different runs: %v/%d/%d vs %v/%d/%d",
			a.FinalSurvival, len(a.Records), a.NodesEvaluated, b.FinalSurvival, len(b.Records), b.NodesEvaluated)
	}
}

func TestRunSaveListShow(t *testing.T) {
	setupCLI(t)
	runSeed = "5"
	runDepth = 2
	runSave = true

	cmd, out := newTestCmd()
	if err := runRun(cmd, nil); err != nil {
		t.Fatalf("runRun: %v", err)
	}
	if !strings.Contains(out.String(), "Saved:") {
		t.Errorf("expected saved path in output, got:\n%s", out.String())
	}

	output = "json"
	cmd, out = newTestCmd()
	if err := runList(cmd, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}
	var entries []storage.IndexEntry
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("expected JSON entries, got %q: %v", out.String(), err)
	}
	if len(entries) != 1 {
		t.Fatalf("list returned %d entries, want 1", len(entries))
	}

	output = ""
	cmd, out = newTestCmd()
	if err := runShow(cmd, []string{entries[0].RunID[:8]}); err != nil {
		t.Fatalf("runShow: %v", err)
	}
	for _, want := range []string{entries[0].RunID, "Source:   preset:earth", "STAGE"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("show output missing %q:\n%s", want, out.String())
		}
	}

	showMarkdown = true
	cmd, out = newTestCmd()
	if err := runShow(cmd, []string{entries[0].RunID}); err != nil {
		t.Fatalf("runShow --markdown: %v", err)
	}
	if !strings.HasPrefix(out.String(), "---") {
		t.Errorf("markdown report should start with frontmatter, got:\n%s", out.String())
	}
}

func TestShowUnknownRun(t *testing.T) {
	setupCLI(t)
	cmd, _ := newTestCmd()
	err := runShow(cmd, []string{"nope"})
	if !errors.Is(err, storage.ErrTraceNotFound) {
		t.Errorf("runShow unknown = %v, want ErrTraceNotFound", err)
	}
}

func TestRunRejectsInvalidParameters(t *testing.T) {
	setupCLI(t)
	runSets = []string{"sampling.recursive_depth_limit=0"}

	cmd, _ := newTestCmd()
	err := runRun(cmd, nil)
	var pe *validation.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("runRun = %v, want validation error", err)
	}
}

func TestRunRejectsBadEngineFlags(t *testing.T) {
	setupCLI(t)
	runStrategy = "cauchy"

	cmd, _ := newTestCmd()
	if err := runRun(cmd, nil); err == nil {
		t.Fatal("runRun with unknown strategy should fail")
	}
}

func TestEarthBatchJSON(t *testing.T) {
	setupCLI(t)
	output = "json"
	batchSize = 3
	batchSeed = "1"
	batchNoSave = true

	cmd, out := newTestCmd()
	if err := runEarth(cmd, nil); err != nil {
		t.Fatalf("runEarth: %v", err)
	}
	var sum batch.Summary
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil {
		t.Fatalf("expected JSON summary, got %q: %v", out.String(), err)
	}
	if len(sum.Results) != 3 {
		t.Errorf("Results = %d, want 3", len(sum.Results))
	}
	if sum.Report.TotalRuns != 3 {
		t.Errorf("TotalRuns = %d, want 3", sum.Report.TotalRuns)
	}
	if sum.Seed != 1 {
		t.Errorf("Seed = %d, want 1", sum.Seed)
	}
}

func TestBatchWritesMetricsAndTraces(t *testing.T) {
	dir := setupCLI(t)
	batchSize = 4
	batchSeed = "11"
	batchSampler = "uniform"
	batchShowRuns = true
	batchNoValidate = true
	batchMetricsFile = filepath.Join(dir, "rdee.prom")

	cmd, out := newTestCmd()
	if err := runBatch(cmd, nil); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if !strings.Contains(out.String(), "Batch:") {
		t.Errorf("missing summary:\n%s", out.String())
	}

	data, err := os.ReadFile(batchMetricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), "rdee_batch_validations_total") {
		t.Errorf("metrics file missing validation counter:\n%s", data)
	}

	index := filepath.Join(baseDir, "index", "runs.jsonl")
	if _, err := os.Stat(index); err != nil {
		t.Errorf("expected run index at %s: %v", index, err)
	}
}

func TestBatchWithStageOverrides(t *testing.T) {
	dir := setupCLI(t)
	cfg := "stages:\n  stellar_mass:\n    min: 0.8\n  evolutionary_complexity_threshold:\n    max: 9\n" +
		"batch:\n  bounds:\n    stellar.stellar_mass:\n      min: 0.9\n      max: 1.1\n"
	if err := os.MkdirAll(filepath.Join(dir, ".rdee"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".rdee", "config.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	output = "json"
	batchSize = 3
	batchSeed = "8"
	batchSampler = "uniform"
	batchNoSave = true

	cmd, out := newTestCmd()
	if err := runBatch(cmd, nil); err != nil {
		t.Fatalf("runBatch with stage overrides: %v", err)
	}
	var sum batch.Summary
	if err := json.Unmarshal(out.Bytes(), &sum); err != nil {
		t.Fatalf("expected JSON summary, got %q: %v", out.String(), err)
	}
	if len(sum.Results) != 3 {
		t.Errorf("Results = %d, want 3", len(sum.Results))
	}
}

func TestEngineOverridesHonorZeroScale(t *testing.T) {
	setupCLI(t)

	cmd, _ := newTestCmd()
	addEngineFlags(cmd)
	if o := engineOverrides(cmd); o.Engine.PerturbationScale != nil {
		t.Errorf("unset --scale should not override, got %v", *o.Engine.PerturbationScale)
	}
	if err := cmd.Flags().Set("scale", "0"); err != nil {
		t.Fatal(err)
	}
	o := engineOverrides(cmd)
	if o.Engine.PerturbationScale == nil || *o.Engine.PerturbationScale != 0 {
		t.Errorf("--scale 0 override = %v, want 0", o.Engine.PerturbationScale)
	}
}

func TestSweepTable(t *testing.T) {
	dir := setupCLI(t)
	sweepFile = filepath.Join(dir, "sweep.yaml")
	if err := os.WriteFile(sweepFile, []byte("stellar.stellar_mass: [0.9, 1.0]\nplanetary.planet_distance: [1.0, 3.0]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sweepDepth = 2
	batchSeed = "2"
	batchNoSave = true
	batchNoValidate = true

	cmd, out := newTestCmd()
	if err := runSweep(cmd, nil); err != nil {
		t.Fatalf("runSweep: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "stellar.stellar_mass") {
		t.Errorf("sweep table missing path column:\n%s", got)
	}
	// Four grid points; planet_distance 3.0 always collapses at planetary.
	if n := strings.Count(got, "COLLAPSED at planetary"); n < 2 {
		t.Errorf("expected the far grid points to collapse at planetary, got %d:\n%s", n, got)
	}
}

func TestValidateReportsViolations(t *testing.T) {
	setupCLI(t)
	output = "json"
	validateSets = []string{"sampling.recursive_depth_limit=0"}

	cmd, out := newTestCmd()
	err := runValidate(cmd, nil)
	if !errors.Is(err, errInvalidParameters) {
		t.Fatalf("runValidate = %v, want errInvalidParameters", err)
	}
	var res validateResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("expected JSON result, got %q: %v", out.String(), err)
	}
	if res.Valid || len(res.Violations) == 0 {
		t.Errorf("result = %+v, want violations", res)
	}
}

func TestValidateEarth(t *testing.T) {
	setupCLI(t)
	cmd, out := newTestCmd()
	if err := runValidate(cmd, nil); err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(out.String(), "valid") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestParamsTemplateLoadsBack(t *testing.T) {
	dir := setupCLI(t)
	cmd, out := newTestCmd()
	if err := runParamsTemplate(cmd, nil); err != nil {
		t.Fatalf("runParamsTemplate: %v", err)
	}
	path := filepath.Join(dir, "params.yaml")
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	set, err := params.Load(path)
	if err != nil {
		t.Fatalf("template does not load back: %v", err)
	}
	if got := *set.Stellar.Mass.Value; got != 1 {
		t.Errorf("stellar mass = %g, want 1", got)
	}

	paramsPaths = true
	cmd, out = newTestCmd()
	if err := runParamsTemplate(cmd, nil); err != nil {
		t.Fatalf("runParamsTemplate --paths: %v", err)
	}
	if !strings.Contains(out.String(), "sampling.recursive_depth_limit") {
		t.Errorf("paths listing missing depth limit:\n%s", out.String())
	}
}

func TestConfigShowJSON(t *testing.T) {
	setupCLI(t)
	output = "json"
	configShow = true

	cmd, out := newTestCmd()
	if err := runConfig(cmd, nil); err != nil {
		t.Fatalf("runConfig: %v", err)
	}
	var got map[string]map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON, got %q: %v", out.String(), err)
	}
	if got["output"]["source"] != "flag" {
		t.Errorf("output source = %v, want flag", got["output"]["source"])
	}
	if got["storage_backend"]["value"] != "file" {
		t.Errorf("storage_backend = %v, want file", got["storage_backend"]["value"])
	}
}

func TestLoadParams(t *testing.T) {
	set, source, err := loadParams("", "earth", []string{"stellar.stellar_mass=1.1"}, 4)
	if err != nil {
		t.Fatalf("loadParams: %v", err)
	}
	if source != "preset:earth" {
		t.Errorf("source = %q", source)
	}
	if *set.Stellar.Mass.Value != 1.1 {
		t.Errorf("stellar mass = %g, want 1.1", *set.Stellar.Mass.Value)
	}
	if d, _ := set.DepthLimit(); d != 4 {
		t.Errorf("depth limit = %d, want 4", d)
	}

	for _, bad := range [][]string{{"stellar.stellar_mass"}, {"stellar.stellar_mass=heavy"}, {"dark.matter=1"}} {
		if _, _, err := loadParams("", "earth", bad, 0); err == nil {
			t.Errorf("loadParams(%v) should fail", bad)
		}
	}
	if _, _, err := loadParams("", "mars", nil, 0); err == nil {
		t.Error("unknown preset should fail")
	}
}

func TestParseSeed(t *testing.T) {
	if s, err := parseSeed(""); s != nil || err != nil {
		t.Errorf("parseSeed(\"\") = %v, %v", s, err)
	}
	if s, err := parseSeed("18446744073709551615"); err != nil || *s != 1<<64-1 {
		t.Errorf("parseSeed(max) = %v, %v", s, err)
	}
	if _, err := parseSeed("-1"); err == nil {
		t.Error("parseSeed(-1) should fail")
	}
}

func TestFilterEntries(t *testing.T) {
	now := time.Now()
	entries := []storage.IndexEntry{
		{RunID: "a", Date: now, Survived: true},
		{RunID: "b", Date: now, Survived: false, CollapseStage: "stellar"},
		{RunID: "c", Date: now, Survived: true},
	}

	got := filterEntries(entries, 0, false, false, "")
	if len(got) != 3 || got[0].RunID != "c" {
		t.Errorf("filterEntries newest first = %v", got)
	}
	if got := filterEntries(entries, 1, false, false, ""); len(got) != 1 {
		t.Errorf("limit 1 returned %d", len(got))
	}
	if got := filterEntries(entries, 0, true, false, ""); len(got) != 1 || got[0].RunID != "b" {
		t.Errorf("collapsed filter = %v", got)
	}
	if got := filterEntries(entries, 0, false, true, ""); len(got) != 2 {
		t.Errorf("survived filter = %v", got)
	}
	if got := filterEntries(entries, 0, false, false, stage.Stellar); len(got) != 1 || got[0].RunID != "b" {
		t.Errorf("stage filter = %v", got)
	}
	if got := filterEntries(entries, 0, false, false, stage.Prebiotic); len(got) != 0 {
		t.Errorf("stage filter with no match = %v", got)
	}
}

func TestListRejectsUnknownStage(t *testing.T) {
	setupCLI(t)
	listStage = "galactic"

	cmd, _ := newTestCmd()
	if err := runList(cmd, nil); !errors.Is(err, errUnknownStage) {
		t.Errorf("runList --stage galactic = %v, want errUnknownStage", err)
	}
}
