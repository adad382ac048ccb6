package eventjoin

// EventBarrier is the per-event slot element: a clone of the template barrier
// plus the time of the event it tracks
type EventBarrier struct {
	*GroupBarrier
	EventTime uint64
}

// Init clones the template's sources and groups into the slot
func (e *EventBarrier) Init(template *GroupBarrier) {
	e.GroupBarrier = template.Clone()
	e.EventTime = 0
}

// Reset clears the slot for the next event
func (e *EventBarrier) Reset() {
	if e.GroupBarrier != nil {
		e.GroupBarrier.Reset()
	}
	e.EventTime = 0
}

// EventBuffer is the ring of per-event barriers used by Joiner
type EventBuffer = TimeSequenceBuffer[EventBarrier, *GroupBarrier, *EventBarrier]

// NewEventBuffer allocates capacity slots, each initialised from template
func NewEventBuffer(capacity int, template *GroupBarrier) *EventBuffer {
	b := NewTimeSequenceBuffer[EventBarrier, *GroupBarrier](capacity)
	b.Init(template)
	return b
}
