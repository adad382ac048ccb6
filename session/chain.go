package session

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/creastat/eventjoin/core"
)

// Chain runs stages in sequence, each stage's output feeding the next one's
// input. A Chain is itself a core.Stage.
type Chain struct {
	name   string
	stages []core.Stage
}

// NewChain creates a chain from at least one stage
func NewChain(name string, stages ...core.Stage) (*Chain, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("chain %q must have at least one stage", name)
	}
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("chain %q: stage %d is nil", name, i)
		}
	}
	return &Chain{name: name, stages: stages}, nil
}

// Name returns the chain name
func (c *Chain) Name() string {
	return c.name
}

// InputTypes returns the input types of the first stage
func (c *Chain) InputTypes() []core.EventType {
	return c.stages[0].InputTypes()
}

// OutputTypes returns the output types of the last stage
func (c *Chain) OutputTypes() []core.EventType {
	return c.stages[len(c.stages)-1].OutputTypes()
}

// Process runs every stage concurrently and waits for all of them. The first
// stage error cancels the rest and is returned. Stages must return once ctx
// is done, otherwise a failing stage leaves Process waiting on its siblings.
// A nil output discards the last stage's events.
func (c *Chain) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	chainCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if output == nil {
		discard := make(chan core.Event, 100)
		go func() {
			for range discard {
			}
		}()
		defer close(discard)
		output = discard
	}

	var wg sync.WaitGroup
	errorChan := make(chan error, len(c.stages))

	in := input
	for i, stage := range c.stages {
		target := output
		var next chan core.Event
		if i < len(c.stages)-1 {
			next = make(chan core.Event, 100)
			target = next
		}

		wg.Add(1)
		go func(stage core.Stage, in <-chan core.Event, target chan<- core.Event, next chan core.Event) {
			defer wg.Done()
			if next != nil {
				// intermediate channels belong to the chain and close when their producer returns
				defer close(next)
			}
			if err := runStage(chainCtx, stage, in, target); err != nil {
				errorChan <- err
				cancel()
			}
		}(stage, in, target, next)

		in = next
	}

	wg.Wait()

	close(errorChan)
	for err := range errorChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// runStage executes a single stage, turning a panic into an error
func runStage(ctx context.Context, stage core.Stage, input <-chan core.Event, output chan<- core.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("stage %s panicked: %v\nStack trace:\n%s", stage.Name(), r, buf[:n])
		}
	}()

	if err := stage.Process(ctx, input, output); err != nil {
		return fmt.Errorf("stage %s: %w", stage.Name(), err)
	}
	return nil
}
