package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"

	"predkit/pkg/frame"
)

// Step transforms a frame in place.
type Step interface {
	Name() string
	Apply(f *frame.Frame) error
}

type funcStep struct {
	name string
	fn   func(*frame.Frame) error
}

func (s funcStep) Name() string               { return s.name }
func (s funcStep) Apply(f *frame.Frame) error { return s.fn(f) }

// Func adapts a plain function into a Step.
func Func(name string, fn func(*frame.Frame) error) Step {
	return funcStep{name: name, fn: fn}
}

// Pipeline chains steps.
type Pipeline struct {
	steps  []Step
	logger *log.Logger
}

func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logger: log.New(io.Discard, "", 0)}
}

// WithLogger reports each applied step to l.
func (p *Pipeline) WithLogger(l *log.Logger) *Pipeline {
	p.logger = l
	return p
}

func (p *Pipeline) Steps() []Step { return p.steps }

// Run applies the steps in order, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context, f *frame.Frame) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Apply(f); err != nil {
			return fmt.Errorf("pipeline step %d (%s): %w", i+1, step.Name(), err)
		}
		p.logger.Printf("step %d/%d %s: %d columns", i+1, len(p.steps), step.Name(), len(f.Columns()))
	}
	return nil
}
