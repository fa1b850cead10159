package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/boshu2/rdee/internal/trace"
)

// Key prefixes. Index keys embed the finish time so prefix iteration
// returns runs oldest first.
const (
	tracePrefix      = "trace/"
	indexPrefix      = "index/"
	provenancePrefix = "prov/"
	indexTimeLayout  = "20060102T150405.000000000Z"
)

// BadgerConfig configures a BadgerStorage.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory.
	Path string

	// InMemory keeps everything in memory (tests).
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStorage implements Storage on an embedded badger database.
type BadgerStorage struct {
	cfg BadgerConfig
	db  *badger.DB
}

// NewBadgerStorage returns an unopened store; call Init before use.
func NewBadgerStorage(cfg BadgerConfig) *BadgerStorage {
	return &BadgerStorage{cfg: cfg}
}

// Init opens the database.
func (bs *BadgerStorage) Init() error {
	if bs.db != nil {
		return nil
	}
	if !bs.cfg.InMemory && bs.cfg.Path == "" {
		return errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if bs.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(bs.cfg.Path, 0750); err != nil {
			return fmt.Errorf("create database directory %s: %w", bs.cfg.Path, err)
		}
		opts = badger.DefaultOptions(bs.cfg.Path)
	}
	opts = opts.WithSyncWrites(bs.cfg.SyncWrites).WithNumVersionsToKeep(1)

	if bs.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: bs.cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	bs.db = db
	return nil
}

// WriteTrace stores the trace and its index entry in one transaction.
// Rewriting a run ID replaces the trace and keeps one index entry.
func (bs *BadgerStorage) WriteTrace(t *trace.Trace) (string, error) {
	if err := checkWritable(t); err != nil {
		return "", err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}
	key := tracePrefix + t.RunID
	entry, err := json.Marshal(NewIndexEntry(t, ""))
	if err != nil {
		return "", fmt.Errorf("marshal index entry: %w", err)
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get([]byte(key))
		exists := getErr == nil
		if getErr != nil && !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}
		if err := txn.Set([]byte(key), data); err != nil {
			return err
		}
		if exists {
			return nil
		}
		indexKey := indexPrefix + t.FinishedAt.UTC().Format(indexTimeLayout) + "/" + t.RunID
		return txn.Set([]byte(indexKey), entry)
	})
	if err != nil {
		return "", fmt.Errorf("write trace %s: %w", t.RunID, err)
	}
	return key, nil
}

// ReadTrace retrieves a trace by run ID.
func (bs *BadgerStorage) ReadTrace(runID string) (*trace.Trace, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}
	var t trace.Trace
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tracePrefix + runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTraces returns index entries oldest first.
func (bs *BadgerStorage) ListTraces() ([]IndexEntry, error) {
	return scanPrefix[IndexEntry](bs.db, indexPrefix)
}

// WriteProvenance records provenance information.
func (bs *BadgerStorage) WriteProvenance(record *ProvenanceRecord) error {
	if record.RunID == "" {
		return ErrRunIDRequired
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}
	key := provenancePrefix + record.RunID + "/" + record.ID
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// QueryProvenance finds provenance records for a run.
func (bs *BadgerStorage) QueryProvenance(runID string) ([]ProvenanceRecord, error) {
	return scanPrefix[ProvenanceRecord](bs.db, provenancePrefix+runID+"/")
}

// Close closes the database.
func (bs *BadgerStorage) Close() error {
	if bs.db == nil {
		return nil
	}
	err := bs.db.Close()
	bs.db = nil
	return err
}

func scanPrefix[T any](db *badger.DB, prefix string) ([]T, error) {
	var out []T
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}
