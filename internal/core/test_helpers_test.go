package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/incognito-relay/internal/proto"
	"github.com/vovakirdan/incognito-relay/internal/transport"
)

// startTestServer runs a relay on an ephemeral loopback port.
func startTestServer(t *testing.T) (*Hub, *Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	srv := NewServer(hub, "127.0.0.1:0", 0, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		hub.Close()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer waitCancel()
		_ = hub.Wait(waitCtx)
	})
	return hub, srv
}

type testClient struct {
	t    *testing.T
	raw  net.Conn
	conn *transport.StreamConn
}

func dialRaw(t *testing.T, addr string) *testClient {
	t.Helper()

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	return &testClient{t: t, raw: raw, conn: transport.NewStreamConn(raw, 0)}
}

// join dials, sends the handshake and waits until the hub registered it.
func join(t *testing.T, hub *Hub, addr, username string) *testClient {
	t.Helper()

	before := hub.Registry().Len()
	c := dialRaw(t, addr)
	c.send(proto.NewConnect(username))
	waitForMembers(t, hub, before+1)
	return c
}

func (c *testClient) send(m proto.Message) {
	c.t.Helper()

	frame, err := proto.Encode(m)
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	c.sendRaw(frame)
}

func (c *testClient) sendRaw(frame []byte) {
	c.t.Helper()

	if err := c.conn.WriteFrame(context.Background(), frame); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) mustReceive() proto.Message {
	c.t.Helper()

	_ = c.raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := c.conn.ReadFrame(context.Background())
	if err != nil {
		c.t.Fatalf("expected a message, got %v", err)
	}
	m, err := proto.Decode(frame)
	if err != nil {
		c.t.Fatalf("decode: %v", err)
	}
	return m
}

// mustBeClosedByServer expects the relay to hang up without sending anything.
func (c *testClient) mustBeClosedByServer() {
	c.t.Helper()

	_ = c.raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := c.conn.ReadFrame(context.Background())
	if err == nil {
		c.t.Fatalf("expected close, got frame %s", frame)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.t.Fatalf("server did not close the connection")
	}
}

func waitForMembers(t *testing.T, hub *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Registry().Len() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d members, have %d", n, hub.Registry().Len())
}

// fakeConn records writes and optionally fails them. Frames pushed to inbox
// are handed out by ReadFrame.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	failWith error
	inbox    chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-f.inbox:
		return frame, nil
	case <-f.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) WriteFrame(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "fake" }

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}
