package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// frameDelimiter terminates every frame on a stream. proto.Encode never
// emits a raw newline; frames from other transports must be re-encoded
// before they are written here.
const frameDelimiter = '\n'

// StreamConn frames messages over a net.Conn with a trailing newline.
type StreamConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxSize int

	writeMu sync.Mutex
}

// NewStreamConn wraps conn. maxSize <= 0 selects DefaultMaxFrameSize.
func NewStreamConn(conn net.Conn, maxSize int) *StreamConn {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &StreamConn{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, 64<<10),
		maxSize: maxSize,
	}
}

// ReadFrame returns the next frame without its delimiter. Blank lines are skipped.
// ctx is only checked before blocking; closing the connection unblocks a pending read.
func (c *StreamConn) ReadFrame(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := c.reader.ReadSlice(frameDelimiter)
		if buf.Len()+len(chunk) > c.maxSize+1 {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, c.maxSize)
		}
		buf.Write(chunk)

		switch {
		case err == nil:
			frame := bytes.TrimRight(buf.Bytes(), "\r\n")
			if len(frame) == 0 {
				buf.Reset()
				continue
			}
			return frame, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && buf.Len() > 0:
			// Peer closed after an unterminated frame.
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// WriteFrame writes frame followed by the delimiter in one call.
func (c *StreamConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame) > c.maxSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	out := make([]byte, 0, len(frame)+1)
	out = append(out, frame...)
	out = append(out, frameDelimiter)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(out)
	return err
}

// Close closes the underlying connection.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
