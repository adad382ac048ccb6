package stages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creastat/eventjoin/core"
	"github.com/creastat/eventjoin/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProducerServer starts a WebSocket server that writes frames to every
// client that connects, then waits for the client to hang up
func newProducerServer(t *testing.T, frames [][]byte) *websocket.Conn {
	t.Helper()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, f := range frames {
			if err := c.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)

	u := "ws" + strings.TrimPrefix(s.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestWebSocketSource_EmitsArrivals(t *testing.T) {
	conn := newProducerServer(t, [][]byte{
		mustJSON(t, protocol.InputMessage{
			Type:    protocol.InputArrival,
			Payload: protocol.ArrivalPayload{EventTime: 3, Source: "A", Data: []byte("a")},
		}),
		[]byte("not json"),
		mustJSON(t, protocol.InputMessage{
			Type:    protocol.InputArrival,
			Payload: protocol.ArrivalPayload{EventTime: 3, Source: "B", Data: []byte("b")},
		}),
		mustJSON(t, protocol.InputMessage{Type: protocol.InputEnd}),
	})

	source := NewWebSocketSource(WebSocketSourceConfig{
		Conn:      conn,
		SessionID: "test-session",
		Logger:    testLogger(),
	})

	output := make(chan core.Event, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, source.Process(ctx, nil, output))
	close(output)

	var got []core.Event
	for e := range output {
		got = append(got, e)
	}
	require.Len(t, got, 3)

	assert.Equal(t, core.ArrivalEvent{EventTime: 3, Source: "A", Data: []byte("a")}, got[0])
	errEvent, ok := got[1].(core.ErrorEvent)
	require.True(t, ok)
	assert.True(t, errEvent.Retryable)
	assert.Equal(t, core.ArrivalEvent{EventTime: 3, Source: "B", Data: []byte("b")}, got[2])
}

func TestWebSocketSource_Cancel(t *testing.T) {
	conn := newProducerServer(t, [][]byte{
		mustJSON(t, protocol.InputMessage{Type: protocol.InputCancel}),
	})

	source := NewWebSocketSource(WebSocketSourceConfig{Conn: conn, Logger: testLogger()})
	err := source.Process(context.Background(), nil, make(chan core.Event, 1))
	assert.ErrorIs(t, err, errSessionCancelled)
}

func TestWebSocketSource_ContextCancelled(t *testing.T) {
	conn := newProducerServer(t, nil)

	source := NewWebSocketSource(WebSocketSourceConfig{Conn: conn, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := source.Process(ctx, nil, make(chan core.Event))
	assert.ErrorIs(t, err, context.Canceled)
}
