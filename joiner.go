package eventjoin

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/creastat/eventjoin/core"
	"github.com/creastat/infra/telemetry"
)

// Joiner tracks one GroupBarrier per in-flight event in a TimeSequenceBuffer.
// Arrivals for a new event time allocate a slot, arrivals for a live event
// reuse it, and completed events are purged from the oldest end.
//
// A Joiner is not safe for concurrent use; JoinStage owns one per goroutine.
type Joiner struct {
	config       core.JoinConfig
	logger       telemetry.Logger
	template     *GroupBarrier
	events       *EventBuffer
	visitCurrent bool

	// lastKey is the newest event time allocated so far
	lastKey uint64
	hasKey  bool

	// purgedKey is the newest event time dropped from the buffer
	purgedKey uint64
	hasPurged bool
}

// ArriveResult describes the outcome of one arrival
type ArriveResult struct {
	EventTime uint64

	// Fired is true if the arrival fired at least one group
	Fired bool

	// Groups are the groups fired by this arrival, in definition order
	Groups []ActionGroup

	// Complete is true once every group of the event has fired
	Complete bool

	// Evicted is set when a still incomplete event was dropped to make room
	Evicted *Expired
}

// Expired describes an event dropped before all of its groups fired
type Expired struct {
	EventTime  uint64
	ActiveMask uint64
	Pending    []ActionGroup
	Evicted    bool
}

// PendingNames returns the names of the groups that never fired
func (e Expired) PendingNames() []string {
	out := make([]string, len(e.Pending))
	for i, g := range e.Pending {
		out[i] = g.Name()
	}
	return out
}

// NewJoiner validates config and allocates the event buffer
func NewJoiner(config core.JoinConfig) (*Joiner, error) {
	if len(config.Groups) == 0 {
		return nil, ValidationError{
			Message: "join config validation failed",
			Details: "no action groups defined",
		}
	}
	if config.Capacity < 0 {
		return nil, ValidationError{
			Message: "join config validation failed",
			Details: fmt.Sprintf("negative capacity %d", config.Capacity),
		}
	}
	if config.Capacity == 0 {
		config.Capacity = core.DefaultJoinCapacity
	}
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}

	template, err := NewGroupBarrier(config.Groups)
	if err != nil {
		return nil, err
	}

	return &Joiner{
		config:       config,
		logger:       config.Logger.WithModule("joiner"),
		template:     template,
		events:       NewEventBuffer(config.Capacity, template),
		visitCurrent: config.ShouldVisitCurrentSource(),
	}, nil
}

// SourceIndex resolves a source name against the joiner's groups
func (j *Joiner) SourceIndex(name string) (int, error) {
	return j.template.GetSourceIndex(name)
}

// Pending returns the number of events currently tracked
func (j *Joiner) Pending() int {
	return j.events.Len()
}

// Capacity returns the number of events that can be tracked at once
func (j *Joiner) Capacity() int {
	return j.events.Cap()
}

// Arrive records data from source for the event at eventTime and replays the
// joined payload through visitor if any group fires. visitor may be nil.
func (j *Joiner) Arrive(eventTime uint64, source string, data []byte, visitor core.Visitor) (ArriveResult, error) {
	idx, err := j.template.GetSourceIndex(source)
	if err != nil {
		return ArriveResult{}, err
	}
	if visitor == nil {
		visitor = func([]byte) {}
	}

	result := ArriveResult{EventTime: eventTime}

	c := j.events.FindIf(func(key uint64, _ *EventBarrier) bool { return key == eventTime })
	if c.Equal(j.events.End()) {
		if j.isStale(eventTime) {
			return result, fmt.Errorf("%w: event time %d", ErrStaleEvent, eventTime)
		}
		if j.events.Len() == j.events.Cap() {
			result.Evicted = j.describeOldest()
			j.markPurged(j.events.Begin().Key())
		}
		c = j.events.GetBuffer(eventTime)
		c.Item().EventTime = eventTime
		j.lastKey, j.hasKey = eventTime, true
		if result.Evicted != nil {
			// completed events queued behind the dropped one can go too
			j.purgeCompleted()
			c = j.events.FindIf(func(key uint64, _ *EventBarrier) bool { return key == eventTime })
		}
	}

	event := c.Item()
	fired, groups := event.ArriveSource(idx, visitor, data, j.visitCurrent)
	result.Fired = fired
	result.Complete = event.AllTriggered()
	if !fired {
		return result, nil
	}

	result.Groups = make([]ActionGroup, 0, groups.Len())
	for _, g := range groups.All() {
		result.Groups = append(result.Groups, g)
	}

	j.logger.Debug("action groups fired",
		telemetry.String("event_time", strconv.FormatUint(eventTime, 10)),
		telemetry.String("source", source),
		telemetry.Int("groups", len(result.Groups)),
		telemetry.Bool("complete", result.Complete))

	if result.Complete {
		j.purgeCompleted()
	}
	return result, nil
}

// Expire drops every event with time <= threshold, oldest first, and reports
// the ones that had not completed. Later arrivals that would open a new event
// at or below threshold are rejected as stale.
func (j *Joiner) Expire(threshold uint64) []Expired {
	var expired []Expired
	for key, event := range j.events.All() {
		if key > threshold {
			break
		}
		if !event.AllTriggered() {
			expired = append(expired, Expired{
				EventTime:  key,
				ActiveMask: event.ActiveMask(),
				Pending:    event.Pending(),
			})
		}
	}

	if n := j.events.PurgeUntilKey(threshold); n > 0 {
		j.logger.Debug("expired events",
			telemetry.String("threshold", strconv.FormatUint(threshold, 10)),
			telemetry.Int("purged", n),
			telemetry.Int("incomplete", len(expired)))
	}
	// times at or below threshold are closed even if nothing was tracked
	j.markPurged(threshold)
	j.purgeCompleted()
	return expired
}

// isStale reports whether a new slot for eventTime would break key ordering
// or resurrect an event already dropped
func (j *Joiner) isStale(eventTime uint64) bool {
	if j.hasKey && eventTime < j.lastKey {
		return true
	}
	return j.hasPurged && eventTime <= j.purgedKey
}

// describeOldest describes the event about to be recycled by GetBuffer, or
// returns nil if it already completed
func (j *Joiner) describeOldest() *Expired {
	oldest := j.events.Begin()
	event := oldest.Item()
	if event.AllTriggered() {
		return nil
	}

	j.logger.Warn("buffer full, dropping oldest incomplete event",
		telemetry.String("event_time", strconv.FormatUint(oldest.Key(), 10)),
		telemetry.Int("capacity", j.events.Cap()))

	return &Expired{
		EventTime:  oldest.Key(),
		ActiveMask: event.ActiveMask(),
		Pending:    event.Pending(),
		Evicted:    true,
	}
}

// purgeCompleted drops the run of completed events at the oldest end. An
// incomplete older event keeps later completed ones alive until it completes
// or expires.
func (j *Joiner) purgeCompleted() {
	for j.events.Len() > 0 {
		oldest := j.events.Begin()
		if !oldest.Item().AllTriggered() {
			return
		}
		key := oldest.Key()
		if err := j.events.PurgeUntil(oldest); err != nil {
			j.logger.Error("purge failed", telemetry.Err(err))
			return
		}
		j.markPurged(key)
	}
}

func (j *Joiner) markPurged(key uint64) {
	if !j.hasPurged || key > j.purgedKey {
		j.purgedKey, j.hasPurged = key, true
	}
}

// PendingEvents returns the event times currently tracked, oldest first
func (j *Joiner) PendingEvents() []uint64 {
	var out []uint64
	for key := range j.events.All() {
		out = append(out, key)
	}
	return slices.Clip(out)
}
