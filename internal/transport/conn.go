// Package transport carries encoded messages over a byte stream or a
// WebSocket, one message per frame.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// DefaultMaxFrameSize bounds a single frame when the caller does not configure one.
const DefaultMaxFrameSize = 16 << 20

var (
	// ErrFrameTooLarge is returned when a peer sends a frame above the configured limit.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrClosed is returned by operations on a connection that was closed locally.
	ErrClosed = errors.New("connection closed")
)

// Conn moves whole frames in both directions.
// Implementations allow one concurrent reader and serialize concurrent writers.
type Conn interface {
	// ReadFrame blocks until a full frame arrives. io.EOF means the peer went away.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame sends one frame.
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
	RemoteAddr() string
}

// IsClosed reports whether err means the connection ended rather than misbehaved.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "status = StatusNormalClosure") ||
		strings.Contains(msg, "status = StatusGoingAway")
}
