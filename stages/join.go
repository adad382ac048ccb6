package stages

import (
	"context"
	"errors"
	"strconv"

	"github.com/creastat/eventjoin"
	"github.com/creastat/eventjoin/core"
	"github.com/creastat/infra/telemetry"
)

// JoinStageConfig holds configuration for JoinStage
type JoinStageConfig struct {
	Join core.JoinConfig

	// Horizon expires events older than the newest arrival's time minus Horizon.
	// Zero disables time based expiry; capacity eviction still applies.
	Horizon uint64

	Logger telemetry.Logger
}

// JoinStage feeds ArrivalEvents into a Joiner and emits a JoinEvent every time
// an arrival fires action groups. The joiner is owned by the Process goroutine.
type JoinStage struct {
	config JoinStageConfig
	joiner *eventjoin.Joiner
}

// NewJoinStage creates a new JoinStage
func NewJoinStage(config JoinStageConfig) (*JoinStage, error) {
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	if config.Join.Logger == nil {
		config.Join.Logger = config.Logger
	}

	joiner, err := eventjoin.NewJoiner(config.Join)
	if err != nil {
		return nil, err
	}

	return &JoinStage{
		config: config,
		joiner: joiner,
	}, nil
}

// Name returns the stage name
func (s *JoinStage) Name() string {
	return "join"
}

// InputTypes returns the event types this stage accepts
func (s *JoinStage) InputTypes() []core.EventType {
	return []core.EventType{core.EventTypeArrival}
}

// OutputTypes returns the event types this stage produces
func (s *JoinStage) OutputTypes() []core.EventType {
	return []core.EventType{core.EventTypeJoin, core.EventTypeExpired, core.EventTypeError, core.EventTypeDone}
}

// Process implements the Stage interface
func (s *JoinStage) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	logger := s.config.Logger.WithModule(s.Name())
	logger.Info("JoinStage started processing", telemetry.Int("capacity", s.joiner.Capacity()))

	var done core.DoneEvent
	var newest uint64

	emit := func(event core.Event) error { return send(ctx, output, event) }

	for {
		var event core.Event
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok = <-input:
		}
		if !ok {
			break
		}

		arrival, isArrival := event.(core.ArrivalEvent)
		if !isArrival {
			logger.Debug("forwarding non-arrival event", telemetry.String("event_type", string(event.EventType())))
			if err := emit(event); err != nil {
				return err
			}
			continue
		}
		done.Arrivals++

		if s.config.Horizon > 0 && arrival.EventTime > newest {
			newest = arrival.EventTime
			if newest > s.config.Horizon {
				for _, exp := range s.joiner.Expire(newest - s.config.Horizon) {
					done.Expired++
					if err := emit(expiredEvent(exp)); err != nil {
						return err
					}
				}
			}
		}

		var parts [][]byte
		result, err := s.joiner.Arrive(arrival.EventTime, arrival.Source, arrival.Data, func(data []byte) {
			parts = append(parts, append([]byte(nil), data...))
		})
		if err != nil {
			logger.Warn("arrival rejected",
				telemetry.Err(err),
				telemetry.String("source", arrival.Source),
				telemetry.String("event_time", strconv.FormatUint(arrival.EventTime, 10)))
			if err := emit(core.ErrorEvent{Error: err, Code: errorCode(err), Retryable: false}); err != nil {
				return err
			}
			continue
		}

		if result.Evicted != nil {
			done.Expired++
			if err := emit(expiredEvent(*result.Evicted)); err != nil {
				return err
			}
		}

		if !result.Fired {
			continue
		}
		done.Joins++

		join := core.JoinEvent{
			EventTime: arrival.EventTime,
			Source:    arrival.Source,
			Groups:    make([]string, len(result.Groups)),
			GroupIDs:  make([]uint64, len(result.Groups)),
			Parts:     parts,
			Complete:  result.Complete,
		}
		for i, g := range result.Groups {
			join.Groups[i] = g.Name()
			join.GroupIDs[i] = g.GroupID()
		}
		logger.Debug("emitting join", telemetry.String("event_time", strconv.FormatUint(arrival.EventTime, 10)), telemetry.Int("groups", len(join.Groups)))
		if err := emit(join); err != nil {
			return err
		}
	}

	done.Pending = s.joiner.Pending()
	logger.Info("input closed, emitting DoneEvent",
		telemetry.Int("arrivals", done.Arrivals),
		telemetry.Int("joins", done.Joins),
		telemetry.Int("expired", done.Expired),
		telemetry.Int("pending", done.Pending))
	return emit(done)
}

func expiredEvent(e eventjoin.Expired) core.ExpiredEvent {
	return core.ExpiredEvent{
		EventTime:     e.EventTime,
		ActiveMask:    e.ActiveMask,
		PendingGroups: e.PendingNames(),
		Evicted:       e.Evicted,
	}
}

func errorCode(err error) core.ErrorCode {
	switch {
	case errors.Is(err, eventjoin.ErrUnknownSource):
		return core.ErrorCodeUnknownSource
	case errors.Is(err, eventjoin.ErrStaleEvent):
		return core.ErrorCodeStaleEvent
	default:
		return core.ErrorCodeInternal
	}
}
