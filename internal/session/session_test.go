package session

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/incognito-relay/internal/core"
	"github.com/vovakirdan/incognito-relay/internal/proto"
	"github.com/vovakirdan/incognito-relay/internal/transport"
)

type stateEvent struct {
	state  State
	detail string
}

type recorder struct {
	messages chan proto.Message
	states   chan stateEvent
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan proto.Message, 64),
		states:   make(chan stateEvent, 64),
	}
}

func (r *recorder) options(username string) Options {
	return Options{
		Username:      username,
		OnMessage:     func(m proto.Message) { r.messages <- m },
		OnStateChange: func(s State, detail string) { r.states <- stateEvent{s, detail} },
	}
}

func (r *recorder) mustMessage(t *testing.T, typ proto.Type) proto.Message {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-r.messages:
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("expected %s message not received", typ)
			return proto.Message{}
		}
	}
}

func (r *recorder) mustState(t *testing.T, want State) stateEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.states:
			if ev.state == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected state %s not reached", want)
			return stateEvent{}
		}
	}
}

func startRelay(t *testing.T) (*core.Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := core.NewHub(nil)
	srv := core.NewServer(hub, "127.0.0.1:0", 0, nil)
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
	})
	return hub, srv.Addr()
}

func openSession(t *testing.T, addr, username string) (*Session, *recorder) {
	t.Helper()

	rec := newRecorder()
	s := New(rec.options(username))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Open(ctx, addr); err != nil {
		t.Fatalf("open %s: %v", username, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func waitForMembers(t *testing.T, hub *core.Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Registry().Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d members, have %d", n, hub.Registry().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAliceAndBobExchangeText(t *testing.T) {
	hub, addr := startRelay(t)

	_, bobRec := openSession(t, addr, "bob")
	waitForMembers(t, hub, 1)
	alice, _ := openSession(t, addr, "alice")
	waitForMembers(t, hub, 2)

	joined := bobRec.mustMessage(t, proto.TypeSystem)
	if joined.Content != "alice joined the chat" {
		t.Fatalf("unexpected notice for bob: %+v", joined)
	}

	alice.SendText(context.Background(), "hi")

	got := bobRec.mustMessage(t, proto.TypeMessage)
	if got.Username != "alice" || got.Content != "hi" {
		t.Fatalf("unexpected message for bob: %+v", got)
	}
	if len(got.Timestamp) != len("15:04:05") {
		t.Fatalf("expected HH:MM:SS timestamp, got %q", got.Timestamp)
	}
}

func TestSelfBroadcastIsDelivered(t *testing.T) {
	hub, addr := startRelay(t)

	alice, aliceRec := openSession(t, addr, "alice")
	waitForMembers(t, hub, 1)

	alice.SendText(context.Background(), "echo?")
	got := aliceRec.mustMessage(t, proto.TypeMessage)
	if got.Username != "alice" || got.Content != "echo?" {
		t.Fatalf("unexpected echo: %+v", got)
	}
}

func TestFileShareReachesPeer(t *testing.T) {
	hub, addr := startRelay(t)

	alice, _ := openSession(t, addr, "alice")
	waitForMembers(t, hub, 1)
	_, bobRec := openSession(t, addr, "bob")
	waitForMembers(t, hub, 2)

	payload := []byte("0123456789")
	alice.SendFile(context.Background(), "note.txt", payload)

	got := bobRec.mustMessage(t, proto.TypeFile)
	if got.Filename != "note.txt" || !bytes.Equal(got.Data, payload) {
		t.Fatalf("unexpected file: %q %q", got.Filename, got.Data)
	}
}

func TestPeerLeaveNotice(t *testing.T) {
	hub, addr := startRelay(t)

	_, aliceRec := openSession(t, addr, "alice")
	waitForMembers(t, hub, 1)
	bob, _ := openSession(t, addr, "bob")
	waitForMembers(t, hub, 2)
	_ = aliceRec.mustMessage(t, proto.TypeSystem) // bob joined

	_ = bob.Close()

	left := aliceRec.mustMessage(t, proto.TypeSystem)
	if left.Content != "bob left the chat" {
		t.Fatalf("unexpected notice: %+v", left)
	}
	waitForMembers(t, hub, 1)
}

func TestOpenFailureReportsConnectionFailed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	rec := newRecorder()
	s := New(rec.options("alice"))

	err = s.Open(context.Background(), addr)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("expected closed, got %s", s.State())
	}
	rec.mustState(t, StateConnecting)
	rec.mustState(t, StateClosed)
	notice := rec.mustMessage(t, proto.TypeSystem)
	if !strings.HasPrefix(notice.Content, "Could not connect to relay") {
		t.Fatalf("unexpected notice: %q", notice.Content)
	}

	// No automatic retry: a second Open is refused.
	if err := s.Open(context.Background(), addr); !errors.Is(err, ErrAlreadyOpened) {
		t.Fatalf("expected ErrAlreadyOpened, got %v", err)
	}
}

func TestSendWhileDisconnectedOnlyNotifies(t *testing.T) {
	rec := newRecorder()
	s := New(rec.options("alice"))

	s.SendText(context.Background(), "hello?")

	notice := rec.mustMessage(t, proto.TypeSystem)
	if !strings.Contains(notice.Content, ErrNotConnected.Error()) {
		t.Fatalf("unexpected notice: %q", notice.Content)
	}
	if s.State() != StateDisconnected {
		t.Fatalf("send must not change state, got %s", s.State())
	}
}

// pipeDialer hands the session one end of an in-memory pipe and the test the other.
func pipeDialer(relay chan<- *transport.StreamConn) DialFunc {
	return func(context.Context, string, int) (transport.Conn, error) {
		client, server := net.Pipe()
		relay <- transport.NewStreamConn(server, 0)
		return transport.NewStreamConn(client, 0), nil
	}
}

func openWithPipe(t *testing.T) (*Session, *recorder, *transport.StreamConn) {
	t.Helper()

	relays := make(chan *transport.StreamConn, 1)
	rec := newRecorder()
	opts := rec.options("alice")
	opts.Dial = pipeDialer(relays)
	s := New(opts)

	handshake := make(chan proto.Message, 1)
	var relay *transport.StreamConn
	go func() {
		relay = <-relays
		frame, err := relay.ReadFrame(context.Background())
		if err != nil {
			close(handshake)
			return
		}
		m, _ := proto.Decode(frame)
		handshake <- m
	}()

	if err := s.Open(context.Background(), "pipe"); err != nil {
		t.Fatalf("open: %v", err)
	}
	m, ok := <-handshake
	if !ok || m.Type != proto.TypeConnect || m.Username != "alice" {
		t.Fatalf("expected connect handshake, got %+v", m)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = relay.Close()
	})
	return s, rec, relay
}

func TestReceiveLoopStopsOnMalformedMessage(t *testing.T) {
	s, rec, relay := openWithPipe(t)

	if err := relay.WriteFrame(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := rec.mustState(t, StateClosed)
	if !strings.Contains(ev.detail, proto.ErrMalformedMessage.Error()) {
		t.Fatalf("unexpected close detail: %q", ev.detail)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session not done")
	}
}

func TestReceiveLoopStopsOnEndOfStream(t *testing.T) {
	s, rec, relay := openWithPipe(t)

	system, _ := proto.Encode(proto.NewSystem("welcome"))
	if err := relay.WriteFrame(context.Background(), system); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := rec.mustMessage(t, proto.TypeSystem); got.Content != "welcome" {
		t.Fatalf("unexpected message %+v", got)
	}

	_ = relay.Close()

	ev := rec.mustState(t, StateClosed)
	if !strings.Contains(ev.detail, ErrTransportClosed.Error()) {
		t.Fatalf("unexpected close detail: %q", ev.detail)
	}
	if s.State() != StateClosed {
		t.Fatalf("expected closed, got %s", s.State())
	}

	s.SendText(context.Background(), "too late")
	notice := rec.mustMessage(t, proto.TypeSystem)
	for strings.HasPrefix(notice.Content, "Disconnected") {
		notice = rec.mustMessage(t, proto.TypeSystem)
	}
	if !strings.Contains(notice.Content, ErrNotConnected.Error()) {
		t.Fatalf("unexpected notice: %q", notice.Content)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, rec, _ := openWithPipe(t)

	_ = s.Close()
	_ = s.Close()

	rec.mustState(t, StateClosed)
	select {
	case ev := <-rec.states:
		t.Fatalf("unexpected extra transition %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
