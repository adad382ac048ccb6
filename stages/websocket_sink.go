package stages

import (
	"context"
	"encoding/json"

	"github.com/creastat/eventjoin/core"
	"github.com/creastat/eventjoin/protocol"
	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"
)

// WebSocketSinkConfig holds WebSocket sink configuration
type WebSocketSinkConfig struct {
	Conn      *websocket.Conn
	SessionID string
	ReplyTo   string // ID of the input message or session request being answered
	Logger    telemetry.Logger
}

// WebSocketSink sends join results to a WebSocket connection
type WebSocketSink struct {
	config WebSocketSinkConfig
}

// NewWebSocketSink creates a new WebSocket sink stage
func NewWebSocketSink(config WebSocketSinkConfig) *WebSocketSink {
	return &WebSocketSink{
		config: config,
	}
}

// Name returns the stage name
func (ws *WebSocketSink) Name() string {
	return "websocket_sink"
}

// Process implements the Stage interface
// It reads events from the input channel and sends them to the WebSocket connection
func (ws *WebSocketSink) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	logger := ws.config.Logger.WithModule(ws.Name())
	logger.Info("Starting WebSocket sink stage", telemetry.String("session_id", ws.config.SessionID))

	for {
		select {
		case <-ctx.Done():
			logger.Info("WebSocket sink context cancelled", telemetry.String("session_id", ws.config.SessionID))
			return ctx.Err()

		case event, ok := <-input:
			if !ok {
				logger.Info("WebSocket sink input channel closed", telemetry.String("session_id", ws.config.SessionID))
				return nil
			}

			msg := protocol.EventToMessage(event, ws.config.SessionID, ws.config.ReplyTo)
			if msg == nil {
				logger.Debug("Skipping unknown event type", telemetry.String("session_id", ws.config.SessionID))
				continue
			}

			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("Failed to marshal message", telemetry.Err(err), telemetry.String("session_id", ws.config.SessionID), telemetry.String("event_type", string(msg.Type)))
				// Log error but continue processing - don't fail the pipeline
				continue
			}

			if err := ws.config.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Error("Failed to send message to WebSocket", telemetry.Err(err), telemetry.String("session_id", ws.config.SessionID), telemetry.String("event_type", string(msg.Type)))
				// Connection gone: drain input so the join stage can finish
				for range input {
				}
				return nil
			}

			logger.Debug("Sent event to WebSocket", telemetry.String("type", string(msg.Type)), telemetry.String("session_id", ws.config.SessionID))
		}
	}
}

// InputTypes returns the input event types this stage accepts
func (ws *WebSocketSink) InputTypes() []core.EventType {
	// WebSocket sink accepts all event types
	return []core.EventType{}
}

// OutputTypes returns the output event types this stage produces
func (ws *WebSocketSink) OutputTypes() []core.EventType {
	// WebSocket sink is a terminal stage, it only produces error events
	return []core.EventType{core.EventTypeError}
}
