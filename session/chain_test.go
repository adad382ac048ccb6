package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/creastat/eventjoin/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcStage adapts a function to core.Stage
type funcStage struct {
	name string
	fn   func(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error
}

func (s funcStage) Name() string                  { return s.name }
func (s funcStage) InputTypes() []core.EventType  { return []core.EventType{core.EventTypeArrival} }
func (s funcStage) OutputTypes() []core.EventType { return []core.EventType{core.EventTypeDone} }
func (s funcStage) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	return s.fn(ctx, input, output)
}

func passthrough(name string) funcStage {
	return funcStage{name: name, fn: func(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case e, ok := <-input:
				if !ok {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case output <- e:
				}
			}
		}
	}}
}

func TestChainPassesEventsThrough(t *testing.T) {
	chain, err := NewChain("test", passthrough("a"), passthrough("b"), passthrough("c"))
	require.NoError(t, err)
	assert.Equal(t, []core.EventType{core.EventTypeArrival}, chain.InputTypes())
	assert.Equal(t, []core.EventType{core.EventTypeDone}, chain.OutputTypes())

	input := make(chan core.Event, 3)
	input <- core.ArrivalEvent{EventTime: 1}
	input <- core.ArrivalEvent{EventTime: 2}
	input <- core.DoneEvent{}
	close(input)

	output := make(chan core.Event, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, chain.Process(ctx, input, output))
	close(output)

	var got []core.Event
	for e := range output {
		got = append(got, e)
	}
	assert.Equal(t, []core.Event{
		core.ArrivalEvent{EventTime: 1},
		core.ArrivalEvent{EventTime: 2},
		core.DoneEvent{},
	}, got)
}

func TestChainPropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	failing := funcStage{name: "failing", fn: func(context.Context, <-chan core.Event, chan<- core.Event) error {
		return boom
	}}

	chain, err := NewChain("test", passthrough("a"), failing, passthrough("c"))
	require.NoError(t, err)

	// input is never closed, so "a" only returns through cancellation
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = chain.Process(ctx, make(chan core.Event), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage failing")
}

func TestChainRecoversPanics(t *testing.T) {
	panicking := funcStage{name: "panicking", fn: func(context.Context, <-chan core.Event, chan<- core.Event) error {
		panic("kaboom")
	}}

	chain, err := NewChain("test", panicking)
	require.NoError(t, err)

	err = chain.Process(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "kaboom"))
}

func TestNewChainValidation(t *testing.T) {
	_, err := NewChain("empty")
	assert.Error(t, err)

	_, err = NewChain("nil", passthrough("a"), nil)
	assert.Error(t, err)
}
