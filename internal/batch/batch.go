// Package batch runs many root configurations through validation, the
// engine and storage, fanned out over a bounded worker pool. A failing unit
// is recorded in its result and never aborts the batch.
package batch

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/boshu2/rdee/internal/engine"
	"github.com/boshu2/rdee/internal/monitor"
	"github.com/boshu2/rdee/internal/storage"
	"github.com/boshu2/rdee/internal/trace"
	"github.com/boshu2/rdee/internal/validation"
	"github.com/boshu2/rdee/internal/worker"
)

var tracer = otel.Tracer("rdee/batch")

// Config configures a Runner.
type Config struct {
	// Workers bounds concurrent units. Zero or negative means NumCPU.
	Workers int

	// Seed fixes the batch seed. Unit i runs with a seed derived from it, so
	// results do not depend on scheduling. Nil draws a fresh seed.
	Seed *uint64

	// Engine options applied to every unit. A seed option here is overridden.
	Engine []engine.Option

	// Storage persists traces and provenance. Nil skips persistence.
	Storage storage.Storage

	// Monitor receives counters. Nil creates an unregistered one.
	Monitor *monitor.Monitor

	// SkipValidation runs units without the precondition checks.
	SkipValidation bool

	Logger *slog.Logger
}

// Runner executes batches.
type Runner struct {
	cfg     Config
	pool    *worker.Pool[indexedUnit, Result]
	monitor *monitor.Monitor
	logger  *slog.Logger
}

// Result is the outcome of one unit.
type Result struct {
	Index     int           `json:"index"`
	Seed      uint64        `json:"seed"`
	RunID     string        `json:"run_id,omitempty"`
	Trace     *trace.Trace  `json:"-"`
	TracePath string        `json:"trace_path,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`

	// FailedAt and Error are set together with Err.
	FailedAt Phase  `json:"failed_at,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// Survived reports whether the unit finalized with a surviving verdict.
func (r Result) Survived() bool {
	return r.Err == nil && r.Trace != nil && r.Trace.FinalSurvival
}

// Summary is the outcome of a batch.
type Summary struct {
	BatchID    string         `json:"batch_id"`
	Seed       uint64         `json:"seed"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []Result       `json:"results"`
	Report     monitor.Report `json:"report"`
}

// Failed returns the results that carry an error.
func (s *Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// NewRunner builds a Runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mon := cfg.Monitor
	if mon == nil {
		mon = monitor.New(nil)
	}
	return &Runner{
		cfg:     cfg,
		pool:    worker.NewPool[indexedUnit, Result](cfg.Workers),
		monitor: mon,
		logger:  logger,
	}
}

// Monitor returns the runner's monitor.
func (r *Runner) Monitor() *monitor.Monitor {
	return r.monitor
}

// Run executes units. Engine configuration faults are returned before any
// unit starts. Cancellation is returned after the started units finish;
// units never started carry the context error.
func (r *Runner) Run(ctx context.Context, units []Unit) (*Summary, error) {
	if _, err := engine.New(r.cfg.Engine...); err != nil {
		return nil, fmt.Errorf("engine configuration: %w", err)
	}

	seed := rand.Uint64()
	if r.cfg.Seed != nil {
		seed = *r.cfg.Seed
	}
	sum := &Summary{
		BatchID:   uuid.NewString(),
		Seed:      seed,
		StartedAt: time.Now().UTC(),
	}
	r.monitor.SetBatchID(sum.BatchID)

	ctx, span := tracer.Start(ctx, "batch.Run",
		oteltrace.WithAttributes(
			attribute.String("batch.id", sum.BatchID),
			attribute.Int("batch.size", len(units)),
			attribute.Int("batch.workers", r.pool.Concurrency()),
		),
	)
	defer span.End()

	r.logger.Info("batch started",
		slog.String("batch_id", sum.BatchID),
		slog.Int("units", len(units)),
		slog.Int("workers", r.pool.Concurrency()),
		slog.Uint64("seed", seed),
	)

	indexed := make([]indexedUnit, len(units))
	for i, u := range units {
		indexed[i] = indexedUnit{index: i, seed: unitSeed(seed, i), Unit: u}
	}

	results := r.pool.Process(ctx, indexed, func(ctx context.Context, u indexedUnit) (Result, error) {
		return r.runUnit(ctx, sum.BatchID, u), nil
	})

	sum.Results = make([]Result, len(results))
	for i, res := range results {
		if res.Err != nil {
			sum.Results[i] = Result{
				Index:    i,
				Seed:     indexed[i].seed,
				FailedAt: PhaseCanceled,
				Error:    res.Err.Error(),
				Err:      res.Err,
			}
			continue
		}
		sum.Results[i] = res.Value
	}
	sum.FinishedAt = time.Now().UTC()
	sum.Report = r.monitor.Report()

	span.SetAttributes(
		attribute.Int("batch.survived", sum.Report.SurvivedRuns),
		attribute.Int("batch.failed", len(sum.Failed())),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context canceled")
		return sum, err
	}

	r.logger.Info("batch finished",
		slog.String("batch_id", sum.BatchID),
		slog.Int("survived", sum.Report.SurvivedRuns),
		slog.Int("collapsed", sum.Report.CollapsedRuns),
		slog.Int("failed", len(sum.Failed())),
		slog.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	return sum, nil
}

type indexedUnit struct {
	Unit
	index int
	seed  uint64
}

// runUnit takes one unit through validation, the engine and storage.
func (r *Runner) runUnit(ctx context.Context, batchID string, u indexedUnit) Result {
	res := Result{Index: u.index, Seed: u.seed}

	ctx, span := tracer.Start(ctx, "batch.Unit",
		oteltrace.WithAttributes(
			attribute.Int("unit.index", u.index),
			attribute.String("unit.source", u.Source),
		),
	)
	defer span.End()

	fail := func(phase Phase, err error) Result {
		res.FailedAt = phase
		res.Error = err.Error()
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("unit failed",
			slog.String("batch_id", batchID),
			slog.Int("index", u.index),
			slog.String("phase", string(phase)),
			slog.Any("error", err),
		)
		return res
	}

	if u.Set == nil {
		r.monitor.RegisterValidation(false)
		return fail(PhaseValidate, ErrNilSet)
	}
	if !r.cfg.SkipValidation {
		err := validation.Validate(u.Set)
		r.monitor.RegisterValidation(err == nil)
		if err != nil {
			return fail(PhaseValidate, err)
		}
	} else {
		r.monitor.RegisterValidation(true)
	}

	opts := append(append([]engine.Option{}, r.cfg.Engine...),
		engine.WithSeed(u.seed),
		engine.WithLogger(r.logger.With(slog.Int("unit", u.index))),
	)
	start := time.Now()
	tr, err := engine.Simulate(ctx, u.Set, opts...)
	res.Elapsed = time.Since(start)
	if err != nil {
		r.monitor.RegisterEngineError()
		return fail(PhaseEngine, err)
	}
	res.Trace = tr
	res.RunID = tr.RunID
	r.monitor.RegisterOutcome(tr, res.Elapsed)

	span.SetAttributes(
		attribute.String("run.id", tr.RunID),
		attribute.Bool("run.survived", tr.FinalSurvival),
		attribute.Int("run.nodes", tr.NodesEvaluated),
	)

	if r.cfg.Storage == nil {
		return res
	}
	path, err := r.cfg.Storage.WriteTrace(tr)
	r.monitor.RegisterStorage(err == nil)
	if err != nil {
		return fail(PhaseStorage, err)
	}
	res.TracePath = path

	rec := &storage.ProvenanceRecord{
		ID:         uuid.NewString(),
		RunID:      tr.RunID,
		BatchID:    batchID,
		Source:     u.Source,
		SourcePath: u.SourcePath,
		Seed:       u.seed,
		CreatedAt:  time.Now().UTC(),
		Metadata:   u.Metadata,
	}
	if err := r.cfg.Storage.WriteProvenance(rec); err != nil {
		return fail(PhaseStorage, fmt.Errorf("provenance for %s: %w", tr.RunID, err))
	}
	return res
}

// unitSeed derives unit i's engine seed from the batch seed.
func unitSeed(batch uint64, i int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], batch)
	binary.LittleEndian.PutUint64(buf[8:], uint64(i))
	return xxhash.Sum64(buf[:])
}
