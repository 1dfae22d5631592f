package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hupe1980/supportflow/core"
)

// Frame is the wire envelope on the WebSocket channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type connectedData struct {
	ClientID string `json:"clientId"`
}

type messageData struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn serializes writes; chat turns run concurrently per message and the
// gorilla connection allows only one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(Frame{Event: event, Data: raw})
}

// handleWebSocket runs the real-time channel: a connected frame on upgrade,
// then message frames answered with thinking and response frames. Malformed
// input yields an error frame; the connection stays open.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	wc := &wsConn{conn: conn}
	clientID := core.NewID()
	if err := wc.send("connected", connectedData{ClientID: clientID}); err != nil {
		return nil
	}
	s.logger.Info("ws.connected", "client_id", clientID)

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws.read_failed", "client_id", clientID, "error", err.Error())
			}
			return nil
		}

		switch frame.Event {
		case "message":
			s.handleWSMessage(wc, clientID, frame.Data)
		default:
			_ = wc.send("error", errorData{Message: "unknown event: " + frame.Event})
		}
	}
}

func (s *Server) handleWSMessage(wc *wsConn, clientID string, raw json.RawMessage) {
	var msg messageData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = wc.send("error", errorData{Message: "invalid message data"})
			return
		}
	}
	if msg.Text == "" {
		_ = wc.send("error", errorData{Message: "text is required"})
		return
	}

	_ = wc.send("thinking", map[string]any{})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.chatTimeout)
		defer cancel()

		result, err := s.orch.Chat(ctx, msg.Text, msg.SessionID, msg.UserID)
		if err != nil {
			_ = wc.send("error", errorData{Message: err.Error()})
			return
		}
		if err := wc.send("response", result); err != nil {
			s.logger.Warn("ws.write_failed", "client_id", clientID, "error", err.Error())
		}
	}()
}
