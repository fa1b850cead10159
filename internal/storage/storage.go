// Package storage persists finalized outcome traces, a run index and the
// provenance of each run.
package storage

import (
	"io"
	"time"

	"github.com/boshu2/rdee/internal/trace"
)

// IndexEntry represents a single run in the trace index.
type IndexEntry struct {
	// RunID links to the full trace.
	RunID string `json:"run_id"`

	// Date is when the run finished.
	Date time.Time `json:"date"`

	// TracePath is where the trace was written. Empty for key-value backends.
	TracePath string `json:"trace_path,omitempty"`

	// Survived is the root verdict.
	Survived bool `json:"survived"`

	// CollapseStage names the collapse for failed runs.
	CollapseStage string `json:"collapse_stage,omitempty"`

	// RecursionDepth is the deepest level reached.
	RecursionDepth int `json:"recursion_depth"`

	// Nodes is the number of evaluated branches.
	Nodes int `json:"nodes"`

	// Tags for categorization.
	Tags []string `json:"tags,omitempty"`
}

// NewIndexEntry summarizes t for the index.
func NewIndexEntry(t *trace.Trace, path string) IndexEntry {
	return IndexEntry{
		RunID:          t.RunID,
		Date:           t.FinishedAt,
		TracePath:      path,
		Survived:       t.FinalSurvival,
		CollapseStage:  string(t.CollapseStage),
		RecursionDepth: t.RecursionDepth,
		Nodes:          t.NodesEvaluated,
	}
}

// ProvenanceRecord tracks where a run's parameters came from.
type ProvenanceRecord struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// RunID is the trace this record describes.
	RunID string `json:"run_id"`

	// BatchID groups runs launched together.
	BatchID string `json:"batch_id,omitempty"`

	// Source classifies the input (preset, file, sampler).
	Source string `json:"source"`

	// SourcePath is the parameter file, when there was one.
	SourcePath string `json:"source_path,omitempty"`

	// Seed is the engine root seed.
	Seed uint64 `json:"seed"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// Metadata holds additional provenance data.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Storage is the interface for persisting traces.
type Storage interface {
	// WriteTrace stores a finalized trace and indexes it.
	// Returns where the trace was written.
	WriteTrace(t *trace.Trace) (string, error)

	// ReadTrace retrieves a trace by run ID.
	ReadTrace(runID string) (*trace.Trace, error)

	// ListTraces returns all index entries, oldest first.
	ListTraces() ([]IndexEntry, error)

	// WriteProvenance records provenance information.
	WriteProvenance(record *ProvenanceRecord) error

	// QueryProvenance finds provenance records for a run.
	QueryProvenance(runID string) ([]ProvenanceRecord, error)

	// Init prepares the backend.
	Init() error

	// Close releases any resources.
	Close() error
}

// Formatter transforms traces into specific output formats.
type Formatter interface {
	// Format writes the trace to the given writer.
	Format(w io.Writer, t *trace.Trace) error

	// Extension returns the file extension for this format.
	Extension() string
}

func checkWritable(t *trace.Trace) error {
	if t == nil || t.RunID == "" {
		return ErrRunIDRequired
	}
	if !t.Finalized {
		return ErrNotFinalized
	}
	return nil
}
