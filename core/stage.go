package core

import "context"

// Stage is one step of a join session. Process reads events from input until
// it is closed or ctx is done and writes results to output. Stages never close
// output; the runner that created the channel does.
type Stage interface {
	Name() string
	Process(ctx context.Context, input <-chan Event, output chan<- Event) error

	// InputTypes lists the event types Process consumes. Entry stages that
	// read from a transport instead of input return an empty slice.
	InputTypes() []EventType

	// OutputTypes lists the event types Process may emit.
	OutputTypes() []EventType
}
