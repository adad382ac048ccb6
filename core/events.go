package core

// Event represents any pipeline event
type Event interface {
	EventType() EventType
}

// ArrivalEvent carries one source's payload for a logical event
type ArrivalEvent struct {
	EventTime uint64
	Source    string
	Data      []byte
}

func (e ArrivalEvent) EventType() EventType {
	return EventTypeArrival
}

// JoinEvent is emitted when one arrival fires one or more action groups.
// Parts holds the replayed source payloads in ascending source-index order.
type JoinEvent struct {
	EventTime uint64
	Source    string
	Groups    []string
	GroupIDs  []uint64
	Parts     [][]byte
	Complete  bool
}

func (e JoinEvent) EventType() EventType {
	return EventTypeJoin
}

// Payload returns all replayed parts concatenated in visit order
func (e JoinEvent) Payload() []byte {
	n := 0
	for _, p := range e.Parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range e.Parts {
		out = append(out, p...)
	}
	return out
}

// ExpiredEvent reports an event whose slot was purged before every group fired
type ExpiredEvent struct {
	EventTime     uint64
	ActiveMask    uint64
	PendingGroups []string
	Evicted       bool // true when dropped for capacity rather than by horizon
}

func (e ExpiredEvent) EventType() EventType {
	return EventTypeExpired
}

// ErrorEvent represents an error
type ErrorEvent struct {
	Error     error
	Code      ErrorCode
	Retryable bool
}

func (e ErrorEvent) EventType() EventType {
	return EventTypeError
}

// DoneEvent signals that the input stream finished
type DoneEvent struct {
	Arrivals int
	Joins    int
	Expired  int
	Pending  int
}

func (e DoneEvent) EventType() EventType {
	return EventTypeDone
}
