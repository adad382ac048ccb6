package protocol

// OutputMessageType defines server-to-client message types
type OutputMessageType string

const (
	OutputJoinFired   OutputMessageType = "join.fired"   // One or more action groups fired
	OutputJoinExpired OutputMessageType = "join.expired" // Event dropped before all groups fired
	OutputSessionEnd  OutputMessageType = "session.end"  // Input finished, carries counters
	OutputError       OutputMessageType = "error"
)

// OutputMessage represents a message to client
type OutputMessage struct {
	Type      OutputMessageType `json:"type"`
	ID        string            `json:"id"`                // Server-generated message ID
	SessionID string            `json:"sessionId"`         // Session identifier
	ReplyTo   string            `json:"replyTo,omitempty"` // ID of input message
	Payload   any               `json:"payload"`
	Timestamp int64             `json:"timestamp"`
}

// JoinPayload for join.fired
type JoinPayload struct {
	EventTime uint64   `json:"eventTime"`
	Source    string   `json:"source"`   // Source whose arrival fired the groups
	Groups    []string `json:"groups"`   // Fired group names in definition order
	GroupIDs  []uint64 `json:"groupIds"` // Source bitmasks of the fired groups
	Parts     [][]byte `json:"parts"`    // Replayed payloads in source index order
	Complete  bool     `json:"complete"` // Every group of the event has fired
}

// ExpiredPayload for join.expired
type ExpiredPayload struct {
	EventTime     uint64   `json:"eventTime"`
	ActiveMask    uint64   `json:"activeMask"`
	PendingGroups []string `json:"pendingGroups"`
	Evicted       bool     `json:"evicted"` // Dropped for capacity rather than age
}

// SessionEndPayload for session.end
type SessionEndPayload struct {
	Arrivals int `json:"arrivals"`
	Joins    int `json:"joins"`
	Expired  int `json:"expired"`
	Pending  int `json:"pending"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}
