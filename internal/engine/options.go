package engine

import (
	"log/slog"

	"github.com/boshu2/rdee/internal/bifurcation"
	"github.com/boshu2/rdee/internal/stage"
)

// DefaultMaxNodes bounds the nodes evaluated by one root run.
const DefaultMaxNodes = 1_000_000

type options struct {
	branching  bifurcation.Config
	pipeline   *stage.Pipeline
	seed       *uint64
	exhaustive bool
	maxNodes   int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithBranching sets the branch generator configuration.
func WithBranching(cfg bifurcation.Config) Option {
	return func(o *options) {
		o.branching = cfg
	}
}

// WithRanges builds the stage pipeline from r.
func WithRanges(r stage.Ranges) Option {
	return func(o *options) {
		o.pipeline = stage.NewPipeline(r)
	}
}

// WithPipeline replaces the stage pipeline.
func WithPipeline(p *stage.Pipeline) Option {
	return func(o *options) {
		o.pipeline = p
	}
}

// WithSeed fixes the root seed. Runs with the same seed and inputs produce
// the same records.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithExhaustive explores every child instead of stopping at the first
// surviving leaf.
func WithExhaustive(on bool) Option {
	return func(o *options) {
		o.exhaustive = on
	}
}

// WithMaxNodes caps evaluated nodes per run. Zero or negative disables the cap.
func WithMaxNodes(n int) Option {
	return func(o *options) {
		o.maxNodes = n
	}
}

// WithLogger sets the logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
