package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn wraps a WebSocket connection with message sending, ping/pong
// keepalive and connection lifecycle management.
type WSConn struct {
	conn   *websocket.Conn
	send   chan []byte
	config WebSocketSecurityConfig
	logger *slog.Logger
}

// NewWSConn creates a new WebSocket connection wrapper.
func NewWSConn(conn *websocket.Conn, config WebSocketSecurityConfig, logger *slog.Logger) *WSConn {
	configureWebSocketConn(conn, config)

	return &WSConn{
		conn:   conn,
		send:   make(chan []byte, 64),
		config: config,
		logger: logger,
	}
}

// SendMessage queues a typed message with optional data payload.
// It does not block: if the send buffer is full, the message is dropped.
func (w *WSConn) SendMessage(msgType string, data interface{}) {
	var dataJSON json.RawMessage
	if data != nil {
		dataJSON, _ = json.Marshal(data)
	}
	msgBytes, _ := json.Marshal(WSMessage{Type: msgType, Data: dataJSON})

	select {
	case w.send <- msgBytes:
	default:
		if w.logger != nil {
			w.logger.Warn("WebSocket send buffer full, dropping message", "type", msgType)
		}
	}
}

// SendError sends an error message to the client.
func (w *WSConn) SendError(code, message string) {
	w.SendMessage(WSMsgTypeError, ErrorData{Code: code, Message: message})
}

// Close closes the underlying WebSocket connection.
func (w *WSConn) Close() error {
	return w.conn.Close()
}

// WritePump pumps messages from the send channel to the WebSocket connection
// and sends keepalive pings. It runs until ctx is done or a write fails;
// done is closed on exit.
func (w *WSConn) WritePump(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(w.config.PingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
		if done != nil {
			close(done)
		}
	}()

	for {
		select {
		case message := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteWait))
			w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadMessage reads a single message from the WebSocket connection.
func (w *WSConn) ReadMessage() ([]byte, error) {
	_, message, err := w.conn.ReadMessage()
	return message, err
}
