package stages

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/creastat/eventjoin/core"
	"github.com/creastat/eventjoin/protocol"
	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"
)

// WebSocketSourceConfig holds WebSocket source configuration
type WebSocketSourceConfig struct {
	Conn      *websocket.Conn
	SessionID string
	Logger    telemetry.Logger
}

// WebSocketSource reads source.arrival messages from a WebSocket connection
// and emits them as ArrivalEvents. It is the entry stage of a join pipeline,
// so its input channel is ignored.
type WebSocketSource struct {
	config WebSocketSourceConfig
}

// NewWebSocketSource creates a new WebSocket source stage
func NewWebSocketSource(config WebSocketSourceConfig) *WebSocketSource {
	return &WebSocketSource{
		config: config,
	}
}

// Name returns the stage name
func (ws *WebSocketSource) Name() string {
	return "websocket_source"
}

// Process implements the Stage interface. It returns when the producer sends
// source.end or control.cancel, closes the connection, or ctx is cancelled.
func (ws *WebSocketSource) Process(ctx context.Context, _ <-chan core.Event, output chan<- core.Event) error {
	logger := ws.config.Logger.WithModule(ws.Name())
	logger.Info("Starting WebSocket source stage", telemetry.String("session_id", ws.config.SessionID))

	// ReadMessage blocks without a context; closing the connection unblocks it
	stop := context.AfterFunc(ctx, func() {
		ws.config.Conn.Close()
	})
	defer stop()

	for {
		mt, raw, err := ws.config.Conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("WebSocket closed by producer", telemetry.String("session_id", ws.config.SessionID))
				return nil
			}
			logger.Error("Failed to read from WebSocket", telemetry.Err(err), telemetry.String("session_id", ws.config.SessionID))
			return err
		}
		if mt != websocket.TextMessage {
			logger.Debug("Skipping non-text message", telemetry.Int("message_type", mt))
			continue
		}

		var msg protocol.InputMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("Failed to decode input message", telemetry.Err(err), telemetry.String("session_id", ws.config.SessionID))
			if err := send(ctx, output, core.ErrorEvent{Error: err, Code: core.ErrorCodeInternal, Retryable: true}); err != nil {
				return err
			}
			continue
		}

		switch msg.Type {
		case protocol.InputEnd:
			logger.Info("Producer finished", telemetry.String("session_id", ws.config.SessionID))
			return nil
		case protocol.InputCancel:
			logger.Info("Producer cancelled session", telemetry.String("session_id", ws.config.SessionID))
			return errSessionCancelled
		}

		event := protocol.MessageToEvent(msg)
		if event == nil {
			logger.Debug("Skipping message without event", telemetry.String("type", string(msg.Type)))
			continue
		}
		if err := send(ctx, output, event); err != nil {
			return err
		}
	}
}

var errSessionCancelled = errors.New("session cancelled by producer")

func send(ctx context.Context, output chan<- core.Event, event core.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case output <- event:
		return nil
	}
}

// InputTypes returns the input event types this stage accepts
func (ws *WebSocketSource) InputTypes() []core.EventType {
	return []core.EventType{}
}

// OutputTypes returns the output event types this stage produces
func (ws *WebSocketSource) OutputTypes() []core.EventType {
	return []core.EventType{core.EventTypeArrival, core.EventTypeError}
}
