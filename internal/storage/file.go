package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/boshu2/rdee/internal/trace"
)

const (
	// DefaultBaseDir is the default storage directory.
	DefaultBaseDir = ".rdee/runs"

	// TracesDir holds trace files.
	TracesDir = "traces"

	// IndexDir holds the run index.
	IndexDir = "index"

	// ProvenanceDir holds provenance records.
	ProvenanceDir = "provenance"

	// IndexFile is the name of the main index file.
	IndexFile = "runs.jsonl"

	// ProvenanceFile is the name of the provenance log.
	ProvenanceFile = "provenance.jsonl"

	// SlugMaxLength is the maximum length for URL-safe slugs.
	SlugMaxLength = 50

	// SlugMinWordBoundary is the minimum length before trimming at word boundary.
	SlugMinWordBoundary = 30

	// maxLineBytes bounds one JSONL line; exhaustive traces can be large.
	maxLineBytes = 64 << 20
)

// FileStorage implements Storage using the local filesystem.
type FileStorage struct {
	// BaseDir is the root directory (e.g., .rdee/runs).
	BaseDir string

	// Formatters are the output formats to use. The first must be readable
	// by ReadTrace (JSONL).
	Formatters []Formatter

	mu sync.Mutex
}

// FileStorageOption configures a FileStorage instance.
type FileStorageOption func(*FileStorage)

// WithBaseDir sets the base directory.
func WithBaseDir(dir string) FileStorageOption {
	return func(fs *FileStorage) {
		fs.BaseDir = dir
	}
}

// WithFormatters sets the output formatters.
func WithFormatters(formatters ...Formatter) FileStorageOption {
	return func(fs *FileStorage) {
		fs.Formatters = formatters
	}
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(opts ...FileStorageOption) *FileStorage {
	fs := &FileStorage{
		BaseDir: DefaultBaseDir,
	}

	for _, opt := range opts {
		opt(fs)
	}

	return fs
}

// Init creates the required directory structure.
func (fs *FileStorage) Init() error {
	dirs := []string{
		filepath.Join(fs.BaseDir, TracesDir),
		filepath.Join(fs.BaseDir, IndexDir),
		filepath.Join(fs.BaseDir, ProvenanceDir),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// WriteTrace writes a trace with every configured formatter and appends it
// to the index. Returns the path to the primary trace file.
func (fs *FileStorage) WriteTrace(t *trace.Trace) (string, error) {
	if err := checkWritable(t); err != nil {
		return "", err
	}
	if len(fs.Formatters) == 0 {
		return "", ErrNoFormatters
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	baseName := traceBaseName(t)
	var primaryPath string

	for i, formatter := range fs.Formatters {
		ext := formatter.Extension()
		fullPath := filepath.Join(fs.BaseDir, TracesDir, baseName+ext)

		if err := fs.atomicWrite(fullPath, func(w io.Writer) error {
			return formatter.Format(w, t)
		}); err != nil {
			return "", fmt.Errorf("write %s format: %w", ext, err)
		}

		// First formatter produces the primary path
		if i == 0 {
			primaryPath = fullPath
		}
	}

	indexPath := fs.GetIndexPath()
	if !fs.hasIndexEntry(indexPath, t.RunID) {
		entry := NewIndexEntry(t, primaryPath)
		if err := fs.appendJSONL(indexPath, &entry); err != nil {
			return "", fmt.Errorf("index trace: %w", err)
		}
	}

	return primaryPath, nil
}

// traceBaseName builds YYYY-MM-DD-{outcome}-{runID[:8]}.
func traceBaseName(t *trace.Trace) string {
	outcome := "survived"
	if !t.FinalSurvival {
		outcome = "collapsed " + string(t.CollapseStage)
	}
	shortID := strings.ReplaceAll(t.RunID, "-", "")
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("%s-%s-%s", t.FinishedAt.Format("2006-01-02"), generateSlug(outcome), shortID)
}

// WriteProvenance records provenance information.
func (fs *FileStorage) WriteProvenance(record *ProvenanceRecord) error {
	if record.RunID == "" {
		return ErrRunIDRequired
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.appendJSONL(fs.GetProvenancePath(), record)
}

// ReadTrace retrieves a trace by run ID.
func (fs *FileStorage) ReadTrace(runID string) (*trace.Trace, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}

	// Find trace file by scanning index
	entries, err := fs.ListTraces()
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.RunID == runID {
			return fs.readTraceFile(entry.TracePath)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, runID)
}

// ListTraces returns all run index entries.
func (fs *FileStorage) ListTraces() ([]IndexEntry, error) {
	return readJSONL[IndexEntry](fs.GetIndexPath(), nil)
}

// QueryProvenance finds provenance records for a run.
func (fs *FileStorage) QueryProvenance(runID string) ([]ProvenanceRecord, error) {
	return readJSONL(fs.GetProvenancePath(), func(r ProvenanceRecord) bool {
		return r.RunID == runID
	})
}

// Close releases any resources.
func (fs *FileStorage) Close() error {
	return nil // No resources to release for file storage
}

// readJSONL decodes every well-formed line of path that keep accepts.
// A missing file yields no entries.
func readJSONL[T any](path string, keep func(T) bool) (out []T, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			continue // Skip malformed lines
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}

	return out, scanner.Err()
}

// atomicWrite writes to a temp file and renames atomically.
func (fs *FileStorage) atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Create temp file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// appendJSONL appends one JSON line to path.
func (fs *FileStorage) appendJSONL(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	return f.Sync()
}

// hasIndexEntry checks if a run ID already exists in the index.
func (fs *FileStorage) hasIndexEntry(indexPath, runID string) bool {
	entries, err := readJSONL(indexPath, func(e IndexEntry) bool {
		return e.RunID == runID
	})
	return err == nil && len(entries) > 0
}

// readTraceFile reads a trace from the first line of a JSONL file.
func (fs *FileStorage) readTraceFile(path string) (*trace.Trace, error) {
	if !strings.HasSuffix(path, ".jsonl") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only, errors non-critical
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if scanner.Scan() {
		var t trace.Trace
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			return nil, err
		}
		return &t, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, ErrEmptyTraceFile
}

// generateSlug creates a URL-safe slug from text.
func generateSlug(text string) string {
	if text == "" {
		return "run"
	}

	s := slugify(strings.ToLower(text))
	s = truncateSlug(s)

	if s == "" {
		return "run"
	}
	return s
}

// slugify replaces non-alphanumeric runs with single hyphens and trims leading/trailing hyphens.
func slugify(input string) string {
	var result strings.Builder
	lastHyphen := false
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			result.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(result.String(), "-")
}

// truncateSlug limits the slug to SlugMaxLength, preferring word boundaries.
func truncateSlug(s string) string {
	if len(s) <= SlugMaxLength {
		return s
	}
	s = s[:SlugMaxLength]
	if idx := strings.LastIndex(s, "-"); idx > SlugMinWordBoundary {
		s = s[:idx]
	}
	return s
}

// GetBaseDir returns the configured base directory.
func (fs *FileStorage) GetBaseDir() string {
	return fs.BaseDir
}

// GetTracesDir returns the full path to the traces directory.
func (fs *FileStorage) GetTracesDir() string {
	return filepath.Join(fs.BaseDir, TracesDir)
}

// GetIndexPath returns the full path to the index file.
func (fs *FileStorage) GetIndexPath() string {
	return filepath.Join(fs.BaseDir, IndexDir, IndexFile)
}

// GetProvenancePath returns the full path to the provenance file.
func (fs *FileStorage) GetProvenancePath() string {
	return filepath.Join(fs.BaseDir, ProvenanceDir, ProvenanceFile)
}
