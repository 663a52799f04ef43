// Package agent implements the retrieve-then-generate answer pipeline.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Stage represents a distinct pipeline stage.
type Stage string

const (
	// StageRetrieve fetches context passages for the question.
	StageRetrieve Stage = "retrieving_context"

	// StageGenerate streams the model's answer grounded in the passages.
	StageGenerate Stage = "generating_answer"

	// StageDone marks the pipeline as finished.
	StageDone Stage = "done"
)

// Stages returns all stages in execution order.
func Stages() []Stage {
	return []Stage{StageRetrieve, StageGenerate, StageDone}
}

// ErrInvalidGraph indicates a malformed stage graph.
var ErrInvalidGraph = errors.New("invalid stage graph")

// stageHandler executes one stage against the run state.
type stageHandler func(ctx context.Context, run *pipelineRun) error

// stageGraph is a compiled linear graph of stages. Each stage has at most
// one successor; execution starts at the entry and stops at the terminal
// stage or the first handler error.
type stageGraph struct {
	entry    Stage
	handlers map[Stage]stageHandler
	next     map[Stage]Stage
}

// graphBuilder assembles a stageGraph.
type graphBuilder struct {
	entry    Stage
	handlers map[Stage]stageHandler
	next     map[Stage]Stage
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{
		handlers: make(map[Stage]stageHandler),
		next:     make(map[Stage]Stage),
	}
}

// addStage registers a stage with its handler. A nil handler marks a
// terminal stage.
func (b *graphBuilder) addStage(stage Stage, handler stageHandler) *graphBuilder {
	b.handlers[stage] = handler
	return b
}

// addEdge connects from to to.
func (b *graphBuilder) addEdge(from, to Stage) *graphBuilder {
	b.next[from] = to
	return b
}

// setEntry sets the first stage to run.
func (b *graphBuilder) setEntry(stage Stage) *graphBuilder {
	b.entry = stage
	return b
}

// compile validates the graph: the entry must exist, every edge must point
// at a registered stage and the chain must reach a terminal stage without
// revisiting one.
func (b *graphBuilder) compile() (*stageGraph, error) {
	if b.entry == "" {
		return nil, fmt.Errorf("%w: entry stage not set", ErrInvalidGraph)
	}
	if _, ok := b.handlers[b.entry]; !ok {
		return nil, fmt.Errorf("%w: entry stage %q not registered", ErrInvalidGraph, b.entry)
	}
	for from, to := range b.next {
		if _, ok := b.handlers[from]; !ok {
			return nil, fmt.Errorf("%w: edge from unregistered stage %q", ErrInvalidGraph, from)
		}
		if _, ok := b.handlers[to]; !ok {
			return nil, fmt.Errorf("%w: edge to unregistered stage %q", ErrInvalidGraph, to)
		}
	}

	seen := make(map[Stage]bool)
	stage := b.entry
	for {
		if seen[stage] {
			return nil, fmt.Errorf("%w: cycle through stage %q", ErrInvalidGraph, stage)
		}
		seen[stage] = true
		next, ok := b.next[stage]
		if !ok {
			break
		}
		stage = next
	}

	return &stageGraph{
		entry:    b.entry,
		handlers: b.handlers,
		next:     b.next,
	}, nil
}

// run walks the graph from the entry, invoking each stage handler in order.
// emit is called with the stage before its handler runs.
func (g *stageGraph) run(ctx context.Context, run *pipelineRun, emit func(Stage)) error {
	return g.runFrom(ctx, g.entry, run, emit)
}

// runFrom walks the graph starting at the given stage.
func (g *stageGraph) runFrom(ctx context.Context, start Stage, run *pipelineRun, emit func(Stage)) error {
	stage := start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(stage)
		if handler := g.handlers[stage]; handler != nil {
			if err := handler(ctx, run); err != nil {
				return err
			}
		}
		next, ok := g.next[stage]
		if !ok {
			return nil
		}
		stage = next
	}
}
