// Package trace records the outcome of one root simulation: every stage
// attempt from every branch in evaluation order, the deepest recursion level
// reached, and the final verdict.
//
// A Trace is created once per root run, appended to throughout the descent
// and finalized exactly once. It is not safe for concurrent use; the engine
// owns it for the duration of a run.
package trace

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/stage"
)

var (
	// ErrTraceFinalized is returned by any mutation after Finalize.
	ErrTraceFinalized = errors.New("trace is finalized")

	// ErrInconsistent is returned by Verify when the verdict and the records disagree.
	ErrInconsistent = errors.New("trace is inconsistent")
)

// Record is one stage attempt.
type Record struct {
	// Stage is the stage attempted.
	Stage stage.Name `json:"stage" yaml:"stage"`

	// Survived is the stage outcome.
	Survived bool `json:"survived" yaml:"survived"`

	// Depth is the recursion depth of the branch that attempted the stage.
	Depth int `json:"depth" yaml:"depth"`

	// Path is the branch lineage: child indexes from the root joined by
	// dots. The root branch has an empty path.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Fault is the absorbed evaluator error, if the failure came from one.
	Fault string `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// Trace is the append-only outcome log of one root run.
type Trace struct {
	RunID      string      `json:"run_id" yaml:"run_id"`
	Seed       uint64      `json:"seed" yaml:"seed"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time   `json:"finished_at" yaml:"finished_at"`
	Parameters *params.Set `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Records    []Record    `json:"records" yaml:"records"`

	// RecursionDepth is the deepest level any branch reached.
	RecursionDepth int `json:"recursion_depth" yaml:"recursion_depth"`

	// NodesEvaluated counts branches whose stages were run.
	NodesEvaluated int `json:"nodes_evaluated" yaml:"nodes_evaluated"`

	// SurvivingLeaves counts branches that reached the depth limit alive.
	SurvivingLeaves int `json:"surviving_leaves" yaml:"surviving_leaves"`

	FinalSurvival bool `json:"final_survival" yaml:"final_survival"`

	// CollapseStage is set iff FinalSurvival is false: the stage of the first
	// failed record in the whole trace.
	CollapseStage stage.Name `json:"collapse_stage,omitempty" yaml:"collapse_stage,omitempty"`

	Finalized bool `json:"finalized" yaml:"finalized"`
}

// New starts a trace for a root run over p with a fresh run ID.
func New(p *params.Set) *Trace {
	t := &Trace{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Records:   []Record{},
	}
	if p != nil {
		t.Parameters = p.Clone()
	}
	return t
}

// RecordStage appends one stage attempt to the end of the record list.
func (t *Trace) RecordStage(r Record) error {
	if t.Finalized {
		return ErrTraceFinalized
	}
	t.Records = append(t.Records, r)
	return nil
}

// IncrementDepth advances the deepest-level counter by one.
func (t *Trace) IncrementDepth() error {
	if t.Finalized {
		return ErrTraceFinalized
	}
	t.RecursionDepth++
	return nil
}

// CountNode tallies one evaluated branch.
func (t *Trace) CountNode(survivingLeaf bool) error {
	if t.Finalized {
		return ErrTraceFinalized
	}
	t.NodesEvaluated++
	if survivingLeaf {
		t.SurvivingLeaves++
	}
	return nil
}

// Finalize seals the trace with the root verdict and derives CollapseStage.
func (t *Trace) Finalize(finalSurvival bool) error {
	if t.Finalized {
		return ErrTraceFinalized
	}
	t.FinalSurvival = finalSurvival
	t.CollapseStage = ""
	if !finalSurvival {
		t.CollapseStage = t.firstFailure()
	}
	t.FinishedAt = time.Now().UTC()
	t.Finalized = true
	return nil
}

func (t *Trace) firstFailure() stage.Name {
	for _, r := range t.Records {
		if !r.Survived {
			return r.Stage
		}
	}
	return ""
}

// Collapsed returns the collapse stage and whether the run collapsed.
func (t *Trace) Collapsed() (stage.Name, bool) {
	return t.CollapseStage, t.Finalized && !t.FinalSurvival
}

// Duration is the wall time between start and finalization.
func (t *Trace) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Verify checks the collapse invariant of a finalized trace.
func (t *Trace) Verify() error {
	if !t.Finalized {
		return fmt.Errorf("%w: not finalized", ErrInconsistent)
	}
	if t.FinalSurvival {
		if t.CollapseStage != "" {
			return fmt.Errorf("%w: survived with collapse stage %q", ErrInconsistent, t.CollapseStage)
		}
		return nil
	}
	want := t.firstFailure()
	if t.CollapseStage != want {
		return fmt.Errorf("%w: collapse stage %q, first failure %q", ErrInconsistent, t.CollapseStage, want)
	}
	return nil
}

// StageCount tallies attempts and failures of one stage.
type StageCount struct {
	Stage    stage.Name `json:"stage"`
	Attempts int        `json:"attempts"`
	Failures int        `json:"failures"`
}

// StageCounts returns per-stage tallies in stage order.
func (t *Trace) StageCounts() []StageCount {
	idx := make(map[stage.Name]int)
	var out []StageCount
	for _, name := range stage.All() {
		idx[name] = len(out)
		out = append(out, StageCount{Stage: name})
	}
	for _, r := range t.Records {
		i, ok := idx[r.Stage]
		if !ok {
			idx[r.Stage] = len(out)
			i = len(out)
			out = append(out, StageCount{Stage: r.Stage})
		}
		out[i].Attempts++
		if !r.Survived {
			out[i].Failures++
		}
	}
	return out
}
