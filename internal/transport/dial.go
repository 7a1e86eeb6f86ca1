package transport

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/coder/websocket"
)

// Dial connects to a relay. Addresses starting with ws:// or wss:// go through
// the WebSocket gateway, anything else is a plain TCP host:port.
func Dial(ctx context.Context, addr string, maxSize int) (Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		conn, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return NewWebSocketConn(conn, addr, maxSize), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStreamConn(conn, maxSize), nil
}
