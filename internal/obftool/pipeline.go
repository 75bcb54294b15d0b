// Package obftool hosts the shared driver every pass tool runs:
// parse textual IR -> seed PRNG -> for N iterations: for each defined
// function: transform -> post-process -> write textual IR (§2).
//
// Step/Pipeline is a generic, typed sequential step runner used as the
// top-level CLI orchestration for the transform/verify/write tail of
// each tool's run; the per-module iterate-functions loop itself stays
// inside each pass package, since iterating a module's defined
// functions is specific to driving IR passes rather than to the
// pipeline runner.
package obftool

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step is a discrete unit of work executed within a Pipeline.
type Step[C any] interface {
	Name() string
	Run(ctx C) error
}

// FuncStep allows registering a plain function as a pipeline step.
type FuncStep[C any] struct {
	name string
	fn   func(C) error
}

// Name returns the step's identifier.
func (s FuncStep[C]) Name() string { return s.name }

// Run executes the wrapped function.
func (s FuncStep[C]) Run(ctx C) error { return s.fn(ctx) }

// NewFuncStep constructs a pipeline step from a function.
func NewFuncStep[C any](name string, fn func(C) error) FuncStep[C] {
	return FuncStep[C]{name: name, fn: fn}
}

// Pipeline orchestrates the sequential execution of registered steps.
type Pipeline[C any] struct {
	steps []Step[C]
}

// New returns an empty pipeline.
func New[C any]() *Pipeline[C] { return &Pipeline[C]{} }

// Add appends a step.
func (p *Pipeline[C]) Add(step Step[C]) { p.steps = append(p.steps, step) }

// Execute runs every step in order against log, recording each step's
// name and wall-clock duration. It stops and wraps the error with the
// failing step's name on the first failure.
func (p *Pipeline[C]) Execute(ctx C, log *zap.SugaredLogger) error {
	for _, step := range p.steps {
		start := time.Now()
		err := step.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			log.Errorw("pipeline step failed", "step", step.Name(), "elapsed", elapsed, "err", err)
			return fmt.Errorf("%s step failed: %w", step.Name(), err)
		}
		log.Debugw("pipeline step complete", "step", step.Name(), "elapsed", elapsed)
	}
	return nil
}
