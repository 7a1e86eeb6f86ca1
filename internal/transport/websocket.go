package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// WebSocketConn carries one frame per WebSocket text message.
type WebSocketConn struct {
	conn   *websocket.Conn
	remote string

	writeMu sync.Mutex
}

// NewWebSocketConn wraps an established WebSocket. maxSize <= 0 selects DefaultMaxFrameSize.
func NewWebSocketConn(conn *websocket.Conn, remote string, maxSize int) *WebSocketConn {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	conn.SetReadLimit(int64(maxSize))
	return &WebSocketConn{conn: conn, remote: remote}
}

// AcceptWebSocket upgrades an HTTP request into a WebSocketConn.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, maxSize int) (*WebSocketConn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ws accept: %w", err)
	}
	return NewWebSocketConn(conn, r.RemoteAddr, maxSize), nil
}

// ReadFrame returns the payload of the next data message.
func (c *WebSocketConn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFrame sends frame as a single text message.
func (c *WebSocketConn) WriteFrame(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

// Close performs a normal closure handshake.
func (c *WebSocketConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}

// RemoteAddr returns the address the upgrade request came from.
func (c *WebSocketConn) RemoteAddr() string {
	return c.remote
}
