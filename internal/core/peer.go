package core

import (
	"context"

	"github.com/vovakirdan/incognito-relay/internal/transport"
)

// Peer is one live connection as seen by the relay. The transport is owned
// exclusively by the peer's handler.
type Peer struct {
	ID   string
	conn transport.Conn
}

// NewPeer wraps an accepted connection.
func NewPeer(id string, conn transport.Conn) *Peer {
	return &Peer{ID: id, conn: conn}
}

// Send writes one encoded frame to the peer.
func (p *Peer) Send(ctx context.Context, frame []byte) error {
	return p.conn.WriteFrame(ctx, frame)
}

// RemoteAddr returns the transport address for logging.
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr()
}

func (p *Peer) close() error {
	return p.conn.Close()
}
