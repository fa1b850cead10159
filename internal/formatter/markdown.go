// Package formatter renders outcome traces as JSONL, markdown reports and
// terminal tables.
package formatter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/trace"
)

// DefaultMaxRecords caps the record section of a report.
const DefaultMaxRecords = 200

// MarkdownFormatter outputs traces as markdown reports with YAML frontmatter.
type MarkdownFormatter struct {
	// MaxRecords caps listed stage records; 0 lists none, negative lists all.
	MaxRecords int

	// IncludeParameters appends the root parameter table.
	IncludeParameters bool
}

// NewMarkdownFormatter creates a markdown formatter with the default caps.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{
		MaxRecords:        DefaultMaxRecords,
		IncludeParameters: true,
	}
}

// Format writes the trace as markdown.
func (mf *MarkdownFormatter) Format(w io.Writer, t *trace.Trace) error {
	data := mf.buildTemplateData(t)

	tmpl, err := template.New("trace").Funcs(mf.templateFuncs()).Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	return tmpl.Execute(w, data)
}

// Extension returns the file extension for markdown.
func (mf *MarkdownFormatter) Extension() string {
	return ".md"
}

// templateData holds all data for the markdown template.
type templateData struct {
	// YAML frontmatter fields
	RunID         string
	Date          string
	Survived      bool
	CollapseStage string
	Tags          []string

	// Content sections
	Seed            uint64
	RecursionDepth  int
	Nodes           int
	SurvivingLeaves int
	Duration        string
	Stages          []trace.StageCount
	Records         []trace.Record
	Omitted         int
	Parameters      []paramRow
}

type paramRow struct {
	Path  string
	Value string
	Units string
}

// buildTemplateData prepares data for the template.
func (mf *MarkdownFormatter) buildTemplateData(t *trace.Trace) *templateData {
	data := &templateData{
		RunID:           t.RunID,
		Date:            t.FinishedAt.Format("2006-01-02"),
		Survived:        t.FinalSurvival,
		CollapseStage:   string(t.CollapseStage),
		Tags:            mf.extractTags(t),
		Seed:            t.Seed,
		RecursionDepth:  t.RecursionDepth,
		Nodes:           t.NodesEvaluated,
		SurvivingLeaves: t.SurvivingLeaves,
		Duration:        t.Duration().String(),
		Stages:          t.StageCounts(),
	}

	records := t.Records
	if mf.MaxRecords >= 0 && len(records) > mf.MaxRecords {
		data.Omitted = len(records) - mf.MaxRecords
		records = records[:mf.MaxRecords]
	}
	data.Records = records

	if mf.IncludeParameters && t.Parameters != nil {
		_ = t.Parameters.Walk(func(path string, spec *params.Spec) error {
			row := paramRow{Path: path, Value: "unset", Units: spec.Units}
			if spec.HasValue() {
				row.Value = strconv.FormatFloat(*spec.Value, 'g', 6, 64)
			}
			data.Parameters = append(data.Parameters, row)
			return nil
		})
	}
	return data
}

// extractTags generates tags from the trace outcome.
func (mf *MarkdownFormatter) extractTags(t *trace.Trace) []string {
	tags := []string{"rdee", "trace", t.FinishedAt.Format("2006-01")}
	if t.FinalSurvival {
		return append(tags, "survived")
	}
	return append(tags, "collapsed", "collapse-"+string(t.CollapseStage))
}

// templateFuncs returns custom template functions.
func (mf *MarkdownFormatter) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"verdict": func(d *templateData) string {
			if d.Survived {
				return "Survived"
			}
			return "Collapsed at " + d.CollapseStage
		},
		"mark": func(ok bool) string {
			if ok {
				return "pass"
			}
			return "FAIL"
		},
		"path": func(p string) string {
			if p == "" {
				return "root"
			}
			return p
		},
		"indent": func(depth int) string {
			return strings.Repeat("  ", depth)
		},
	}
}

const markdownTemplate = `---
run_id: {{ .RunID }}
date: {{ .Date }}
survived: {{ .Survived }}
{{- if .CollapseStage }}
collapse_stage: {{ .CollapseStage }}
{{- end }}
recursion_depth: {{ .RecursionDepth }}
tags:
{{- range .Tags }}
  - {{ . }}
{{- end }}
---

# {{ verdict . }}

**Run:** {{ .RunID }}
**Seed:** {{ .Seed }}
**Recursion depth:** {{ .RecursionDepth }}
**Nodes evaluated:** {{ .Nodes }}
**Surviving leaves:** {{ .SurvivingLeaves }}
**Duration:** {{ .Duration }}

## Stages

| Stage | Attempts | Failures |
|-------|----------|----------|
{{- range .Stages }}
| {{ .Stage }} | {{ .Attempts }} | {{ .Failures }} |
{{- end }}

{{- if .Records }}

## Records

{{- range .Records }}
- {{ indent .Depth }}{{ path .Path }} {{ .Stage }}: {{ mark .Survived }}{{ if .Fault }} ({{ .Fault }}){{ end }}
{{- end }}
{{- if .Omitted }}
- ... {{ .Omitted }} more
{{- end }}
{{- end }}

{{- if .Parameters }}

## Parameters

| Path | Value | Units |
|------|-------|-------|
{{- range .Parameters }}
| {{ .Path }} | {{ .Value }} | {{ .Units }} |
{{- end }}
{{- end }}
`
