package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportflow/orchestrator"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.echo)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocket_ConnectedFrame(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialWS(t, s)

	frame := readFrame(t, conn)
	assert.Equal(t, "connected", frame.Event)

	var data connectedData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.NotEmpty(t, data.ClientID)
}

func TestWebSocket_MessageRoundTrip(t *testing.T) {
	s, mock := newTestServer(t)
	mock.AddTextTurn("Hello from the agent.")
	conn := dialWS(t, s)

	readFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(Frame{
		Event: "message",
		Data:  json.RawMessage(`{"text":"hi there"}`),
	}))

	thinking := readFrame(t, conn)
	assert.Equal(t, "thinking", thinking.Event)

	response := readFrame(t, conn)
	require.Equal(t, "response", response.Event)

	var result orchestrator.ChatResult
	require.NoError(t, json.Unmarshal(response.Data, &result))
	assert.Equal(t, "Hello from the agent.", result.Response)
	assert.NotEmpty(t, result.SessionID)
}

func TestWebSocket_MissingTextKeepsConnectionOpen(t *testing.T) {
	s, mock := newTestServer(t)
	mock.AddTextTurn("Still here.")
	conn := dialWS(t, s)

	readFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(Frame{Event: "message", Data: json.RawMessage(`{}`)}))

	errFrame := readFrame(t, conn)
	require.Equal(t, "error", errFrame.Event)
	var data errorData
	require.NoError(t, json.Unmarshal(errFrame.Data, &data))
	assert.Contains(t, data.Message, "text is required")

	// The connection still serves subsequent messages.
	require.NoError(t, conn.WriteJSON(Frame{
		Event: "message",
		Data:  json.RawMessage(`{"text":"are you alive?"}`),
	}))
	assert.Equal(t, "thinking", readFrame(t, conn).Event)
	assert.Equal(t, "response", readFrame(t, conn).Event)
}

func TestWebSocket_UnknownEvent(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialWS(t, s)

	readFrame(t, conn) // connected

	require.NoError(t, conn.WriteJSON(Frame{Event: "dance"}))

	errFrame := readFrame(t, conn)
	require.Equal(t, "error", errFrame.Event)
	var data errorData
	require.NoError(t, json.Unmarshal(errFrame.Data, &data))
	assert.Contains(t, data.Message, "unknown event")
}
