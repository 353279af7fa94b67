package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn adapts a gorilla connection to Conn. Writes are serialised
// and bounded by a deadline.
type WebSocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

// NewWebSocketConn wraps conn.
func NewWebSocketConn(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WebSocketConn{conn: conn, writeTimeout: writeTimeout}
}

// WriteJSON sends v as a text frame.
func (c *WebSocketConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection.
func (c *WebSocketConn) Close() error {
	return c.conn.Close()
}

// Serve subscribes conn to symbol and blocks until the client disconnects.
// Inbound frames are discarded.
func (h *Hub) Serve(symbol string, ws *websocket.Conn, writeTimeout time.Duration) {
	conn := NewWebSocketConn(ws, writeTimeout)
	if err := h.Subscribe(symbol, conn); err != nil {
		h.logger.Debug().Err(err).Str("symbol", symbol).Msg("subscribe rejected")
		_ = conn.Close()
		return
	}
	defer func() {
		h.Unsubscribe(symbol, conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.logger.Debug().Err(err).Str("symbol", symbol).Msg("subscriber disconnected")
			return
		}
	}
}
