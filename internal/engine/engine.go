// Package engine drives the recursive survival search. A root parameter set
// is evaluated against the stage pipeline; a survivor short of the depth
// limit branches into perturbed children, and the root survives if any
// descendant reaches the depth limit alive.
//
// Descent uses an explicit LIFO worklist so stack use is constant and the
// total work is capped by the node budget. Every node owns its parameter
// clone. The trace is shared by all nodes of one run and is never touched
// by another run.
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/boshu2/rdee/internal/bifurcation"
	"github.com/boshu2/rdee/internal/params"
	"github.com/boshu2/rdee/internal/stage"
	"github.com/boshu2/rdee/internal/trace"
)

// Engine runs root simulations. It holds no per-run state and is safe for
// concurrent use; each Run owns its trace.
type Engine struct {
	gen        *bifurcation.Generator
	pipeline   *stage.Pipeline
	seed       *uint64
	exhaustive bool
	maxNodes   int
	logger     *slog.Logger
}

// New builds an Engine. Branch generator faults are returned here, before
// any simulation work.
func New(opts ...Option) (*Engine, error) {
	o := options{
		branching: bifurcation.DefaultConfig(),
		maxNodes:  DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(&o)
	}

	gen, err := bifurcation.New(o.branching)
	if err != nil {
		return nil, err
	}
	if o.pipeline == nil {
		o.pipeline = stage.NewPipeline(stage.DefaultRanges())
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		gen:        gen,
		pipeline:   o.pipeline,
		seed:       o.seed,
		exhaustive: o.exhaustive,
		maxNodes:   o.maxNodes,
		logger:     o.logger,
	}, nil
}

// Simulate builds an Engine from opts and runs set once.
func Simulate(ctx context.Context, set *params.Set, opts ...Option) (*trace.Trace, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, set)
}

// node is one worklist entry.
type node struct {
	depth int
	path  string
	set   *params.Set
}

// Run evaluates set as a root configuration and returns the finalized
// trace. Stage failures are data, not errors; the error return is reserved
// for configuration faults, budget exhaustion and cancellation.
func (e *Engine) Run(ctx context.Context, set *params.Set) (*trace.Trace, error) {
	if set == nil {
		return nil, ErrNilParameters
	}
	limit, err := depthLimit(set)
	if err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if e.seed != nil {
		seed = *e.seed
	}

	tr := trace.New(set)
	tr.Seed = seed
	log := e.logger.With("run_id", tr.RunID)

	stack := []node{{depth: 0, path: "", set: set.Clone()}}
	survived := false

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.maxNodes > 0 && tr.NodesEvaluated >= e.maxNodes {
			return nil, fmt.Errorf("%w: %d nodes evaluated, %d pending", ErrNodeBudgetExceeded, tr.NodesEvaluated, len(stack))
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Depth-first order reaches each new level from the one above it,
		// so the deepest-level counter advances by at most one per node.
		if n.depth > tr.RecursionDepth {
			if err := tr.IncrementDepth(); err != nil {
				return nil, err
			}
		}

		var recordErr error
		ok, collapse := e.pipeline.Run(n.set, streamFor(seed, "stage", n.path), recorder(tr, log, n, &recordErr))
		if recordErr != nil {
			return nil, recordErr
		}

		leaf := ok && n.depth+1 >= limit
		if err := tr.CountNode(leaf); err != nil {
			return nil, err
		}

		switch {
		case !ok:
			log.Debug("branch collapsed", "stage", collapse, "depth", n.depth, "path", n.path)
		case leaf:
			survived = true
			if !e.exhaustive {
				stack = stack[:0]
			}
		default:
			children := e.gen.Children(n.set, func(i int) *rand.Rand {
				return streamFor(seed, "perturb", childPath(n.path, i))
			})
			// Pushed in reverse so child 0 is explored first.
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, node{depth: n.depth + 1, path: childPath(n.path, i), set: children[i]})
			}
		}
	}

	if err := tr.Finalize(survived); err != nil {
		return nil, err
	}
	log.Debug("root run finalized",
		"survived", tr.FinalSurvival,
		"collapse_stage", tr.CollapseStage,
		"recursion_depth", tr.RecursionDepth,
		"nodes", tr.NodesEvaluated,
		"records", len(tr.Records))
	return tr, nil
}

func depthLimit(set *params.Set) (int, error) {
	limit, err := set.DepthLimit()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidDepthLimit, err)
	}
	if limit <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidDepthLimit, limit)
	}
	return limit, nil
}

func childPath(parent string, i int) string {
	if parent == "" {
		return strconv.Itoa(i)
	}
	return parent + "." + strconv.Itoa(i)
}

// streamFor derives an independent random stream for one purpose at one
// branch path.
func streamFor(seed uint64, purpose, path string) *rand.Rand {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(purpose)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(path)
	return rand.New(rand.NewPCG(seed, d.Sum64()))
}

// recorder appends each stage attempt at n to tr. The first append error is
// kept in errp.
func recorder(tr *trace.Trace, log *slog.Logger, n node, errp *error) stage.Recorder {
	return func(name stage.Name, passed bool, fault error) {
		r := trace.Record{Stage: name, Survived: passed, Depth: n.depth, Path: n.path}
		if fault != nil {
			log.Debug("stage fault absorbed", "stage", name, "depth", n.depth, "path", n.path, "error", fault)
			r.Fault = fault.Error()
		}
		if err := tr.RecordStage(r); err != nil && *errp == nil {
			*errp = err
		}
	}
}
