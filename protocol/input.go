package protocol

// InputMessageType defines client-to-server message types
type InputMessageType string

const (
	// Source data
	InputArrival InputMessageType = "source.arrival" // One source's payload for an event
	InputEnd     InputMessageType = "source.end"     // Producer finished sending

	// Control
	InputCancel InputMessageType = "control.cancel" // Cancel current session
)

// InputMessage represents a message from a producer
type InputMessage struct {
	Type      InputMessageType `json:"type"`
	ID        string           `json:"id"`        // Producer-generated message ID
	SessionID string           `json:"sessionId"` // Session identifier
	Payload   ArrivalPayload   `json:"payload"`
	Timestamp int64            `json:"timestamp"`
}

// ArrivalPayload for source.arrival
type ArrivalPayload struct {
	EventTime uint64 `json:"eventTime"`      // Key of the logical event the data belongs to
	Source    string `json:"source"`         // Source name as used in the group definitions
	Data      []byte `json:"data,omitempty"` // Base64 encoded payload
}
