package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/creastat/eventjoin/core"
	"github.com/creastat/eventjoin/stages"
	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"
)

// HandlerConfig holds configuration for Handler
type HandlerConfig struct {
	// Join is cloned for every session; each connection gets its own joiner
	Join    core.JoinConfig
	Horizon uint64

	Upgrader websocket.Upgrader
	Logger   telemetry.Logger
}

// Handler upgrades HTTP requests to WebSocket sessions. Each session reads
// source.arrival messages, joins them and writes join results back on the
// same connection.
type Handler struct {
	config HandlerConfig
	logger telemetry.Logger
}

// NewHandler creates a new session handler
func NewHandler(config HandlerConfig) *Handler {
	if config.Logger == nil {
		config.Logger = telemetry.New(telemetry.Config{Level: "info"})
	}
	return &Handler{
		config: config,
		logger: config.Logger.WithModule("session"),
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	conn, err := h.config.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", telemetry.Err(err))
		return
	}
	defer conn.Close()

	if err := h.Serve(r.Context(), conn, sessionID); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error("Session failed", telemetry.Err(err), telemetry.String("session_id", sessionID))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// Serve runs one join session on an established connection until the
// producer ends it or ctx is cancelled
func (h *Handler) Serve(ctx context.Context, conn *websocket.Conn, sessionID string) error {
	h.logger.Info("Session started", telemetry.String("session_id", sessionID))

	joinConfig := h.config.Join
	joinConfig.Logger = h.config.Logger
	join, err := stages.NewJoinStage(stages.JoinStageConfig{
		Join:    joinConfig,
		Horizon: h.config.Horizon,
		Logger:  h.config.Logger,
	})
	if err != nil {
		return err
	}

	chain, err := NewChain("session-"+sessionID,
		stages.NewWebSocketSource(stages.WebSocketSourceConfig{
			Conn:      conn,
			SessionID: sessionID,
			Logger:    h.config.Logger,
		}),
		join,
		stages.NewWebSocketSink(stages.WebSocketSinkConfig{
			Conn:      conn,
			SessionID: sessionID,
			Logger:    h.config.Logger,
		}),
	)
	if err != nil {
		return err
	}

	err = chain.Process(ctx, nil, nil)
	h.logger.Info("Session finished", telemetry.String("session_id", sessionID))
	return err
}

// generateSessionID generates a unique session ID
func generateSessionID() string {
	return time.Now().Format("20060102150405.000000")
}
