package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/boshu2/rdee/internal/formatter"
)

const (
	// BackendFile stores JSONL traces plus markdown reports on disk.
	BackendFile = "file"

	// BackendBadger stores traces in an embedded badger database.
	BackendBadger = "badger"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Path    string
	Logger  *slog.Logger
}

// Open builds and initializes the configured backend. An empty path means
// DefaultBaseDir for files and DefaultBaseDir/badger for badger.
func Open(cfg Config) (Storage, error) {
	var s Storage
	switch cfg.Backend {
	case "", BackendFile:
		dir := cfg.Path
		if dir == "" {
			dir = DefaultBaseDir
		}
		s = NewFileStorage(
			WithBaseDir(dir),
			WithFormatters(formatter.NewJSONLFormatter(), formatter.NewMarkdownFormatter()),
		)
	case BackendBadger:
		dir := cfg.Path
		if dir == "" {
			dir = filepath.Join(DefaultBaseDir, "badger")
		}
		s = NewBadgerStorage(BadgerConfig{Path: dir, SyncWrites: true, Logger: cfg.Logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Backend, err)
	}
	return s, nil
}
