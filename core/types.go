package core

// EventType categorizes pipeline events
type EventType string

const (
	EventTypeArrival EventType = "arrival"
	EventTypeJoin    EventType = "join"
	EventTypeExpired EventType = "expired"
	EventTypeError   EventType = "error"
	EventTypeDone    EventType = "done"
)

// Visitor receives one source payload replayed by a barrier when a group fires.
// The slice is only valid for the duration of the call.
type Visitor func(data []byte)

// ErrorCode classifies ErrorEvents for downstream consumers
type ErrorCode string

const (
	ErrorCodeUnknownSource ErrorCode = "unknown_source"
	ErrorCodeStaleEvent    ErrorCode = "stale_event"
	ErrorCodeInternal      ErrorCode = "internal"
)
