package protocol

import (
	"time"

	"github.com/creastat/eventjoin/core"
)

// EventToMessage converts a pipeline event to an output message
func EventToMessage(event core.Event, sessionID, replyTo string) *OutputMessage {
	msg := &OutputMessage{
		ID:        generateMessageID(),
		SessionID: sessionID,
		ReplyTo:   replyTo,
		Timestamp: time.Now().UnixMilli(),
	}

	switch e := event.(type) {
	case core.JoinEvent:
		msg.Type = OutputJoinFired
		msg.Payload = JoinPayload{
			EventTime: e.EventTime,
			Source:    e.Source,
			Groups:    e.Groups,
			GroupIDs:  e.GroupIDs,
			Parts:     e.Parts,
			Complete:  e.Complete,
		}

	case core.ExpiredEvent:
		msg.Type = OutputJoinExpired
		msg.Payload = ExpiredPayload{
			EventTime:     e.EventTime,
			ActiveMask:    e.ActiveMask,
			PendingGroups: e.PendingGroups,
			Evicted:       e.Evicted,
		}

	case core.ErrorEvent:
		errMsg := ""
		if e.Error != nil {
			errMsg = e.Error.Error()
		}
		code := string(e.Code)
		if code == "" {
			code = string(core.ErrorCodeInternal)
		}
		return NewErrorMessage(sessionID, replyTo, code, errMsg, e.Retryable, nil)

	case core.DoneEvent:
		msg.Type = OutputSessionEnd
		msg.Payload = SessionEndPayload{
			Arrivals: e.Arrivals,
			Joins:    e.Joins,
			Expired:  e.Expired,
			Pending:  e.Pending,
		}

	default:
		// Unknown event type, skip
		return nil
	}

	return msg
}

// MessageToEvent converts a producer message to a pipeline event.
// It returns nil for messages that carry no event.
func MessageToEvent(msg InputMessage) core.Event {
	switch msg.Type {
	case InputArrival:
		return core.ArrivalEvent{
			EventTime: msg.Payload.EventTime,
			Source:    msg.Payload.Source,
			Data:      msg.Payload.Data,
		}
	default:
		return nil
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, replyTo, code, message string, retryable bool, details any) *OutputMessage {
	return &OutputMessage{
		Type:      OutputError,
		ID:        generateMessageID(),
		SessionID: sessionID,
		ReplyTo:   replyTo,
		Payload: ErrorPayload{
			Code:      code,
			Message:   message,
			Retryable: retryable,
			Details:   details,
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

// generateMessageID generates a unique message ID
func generateMessageID() string {
	return "msg-" + time.Now().Format("20060102150405.000000")
}
