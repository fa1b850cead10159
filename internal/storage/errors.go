package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrRunIDRequired is returned when a trace write is attempted without a run ID.
	ErrRunIDRequired = errors.New("run ID is required")

	// ErrNotFinalized is returned when a trace write is attempted before Finalize.
	ErrNotFinalized = errors.New("trace is not finalized")

	// ErrEmptyTraceFile is returned when a trace file has no content.
	ErrEmptyTraceFile = errors.New("empty trace file")

	// ErrTraceNotFound is returned when no trace matches a run ID.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrUnsupportedFormat is returned when a trace file cannot be read back.
	ErrUnsupportedFormat = errors.New("unsupported trace format")

	// ErrUnknownBackend is returned by Open for an unregistered backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrNoFormatters is returned when a file store has nothing to write with.
	ErrNoFormatters = errors.New("no formatters configured")
)
