package formatter

import (
	"encoding/json"
	"io"

	"github.com/boshu2/rdee/internal/trace"
)

// JSONLFormatter outputs traces as JSON Lines.
// The whole trace is a single JSON object on one line.
type JSONLFormatter struct {
	// Pretty enables indented JSON (not recommended for JSONL).
	Pretty bool
}

// NewJSONLFormatter creates a new JSONL formatter.
func NewJSONLFormatter() *JSONLFormatter {
	return &JSONLFormatter{
		Pretty: false,
	}
}

// Format writes the trace as a JSON line.
func (jf *JSONLFormatter) Format(w io.Writer, t *trace.Trace) error {
	return jf.encoder(w).Encode(t)
}

// Extension returns the file extension for JSONL.
func (jf *JSONLFormatter) Extension() string {
	return ".jsonl"
}

// FormatRecords writes one line per stage record, each tagged with the run ID.
func (jf *JSONLFormatter) FormatRecords(w io.Writer, t *trace.Trace) error {
	enc := jf.encoder(w)
	for i, r := range t.Records {
		line := recordLine{RunID: t.RunID, Seq: i, Record: r}
		if err := enc.Encode(&line); err != nil {
			return err
		}
	}
	return nil
}

// recordLine is one stage record in a record stream.
type recordLine struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`
	trace.Record
}

func (jf *JSONLFormatter) encoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if jf.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder
}
