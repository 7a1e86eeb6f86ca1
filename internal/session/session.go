// Package session owns the client side of a relay connection: the connect
// handshake, outbound sends and the background receive loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/incognito-relay/internal/proto"
	"github.com/vovakirdan/incognito-relay/internal/transport"
	"github.com/vovakirdan/incognito-relay/internal/utils"
)

// State is the client connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrConnectionFailed means the initial dial to the relay did not succeed.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrTransportClosed means a live connection ended.
	ErrTransportClosed = errors.New("transport closed")
	// ErrNotConnected is reported when sending outside the connected state.
	ErrNotConnected = errors.New("not connected to the relay")
	// ErrAlreadyOpened is returned when Open is called twice.
	ErrAlreadyOpened = errors.New("session already opened")
)

// DialFunc opens a transport to addr.
type DialFunc func(ctx context.Context, addr string, maxFrameSize int) (transport.Conn, error)

// Options configures a Session. Callbacks run on the session goroutines and
// must not block for long.
type Options struct {
	Username     string
	MaxFrameSize int

	// OnMessage receives every inbound message plus local system notices.
	OnMessage func(proto.Message)
	// OnStateChange receives every lifecycle transition with a human readable detail.
	OnStateChange func(state State, detail string)

	Logger *zerolog.Logger
	Dial   DialFunc
	Now    func() time.Time
}

// Session is one outbound connection to the relay.
type Session struct {
	id   string
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	state  State
	conn   transport.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a disconnected session.
func New(opts Options) *Session {
	if opts.Dial == nil {
		opts.Dial = transport.Dial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	id := utils.NewID()
	return &Session{
		id:    id,
		opts:  opts,
		log:   logger.With().Str("session_id", id).Str("username", opts.Username).Logger(),
		state: StateDisconnected,
		done:  make(chan struct{}),
	}
}

// Username returns the identity this session announces.
func (s *Session) Username() string {
	return s.opts.Username
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session reaches the closed state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Open dials the relay, sends the connect handshake and starts the receive
// loop. There is no retry: a failed dial leaves the session closed.
func (s *Session) Open(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyOpened
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.notifyState(StateConnecting, addr)

	conn, err := s.opts.Dial(ctx, addr, s.opts.MaxFrameSize)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		s.log.Warn().Err(err).Str("addr", addr).Msg("connect to relay")
		s.finish(err.Error())
		s.notice("Could not connect to relay: " + err.Error())
		return err
	}

	frame, err := proto.Encode(proto.NewConnect(s.opts.Username))
	if err == nil {
		err = conn.WriteFrame(ctx, frame)
	}
	if err != nil {
		_ = conn.Close()
		err = fmt.Errorf("%w: handshake: %v", ErrConnectionFailed, err)
		s.log.Warn().Err(err).Str("addr", addr).Msg("connect to relay")
		s.finish(err.Error())
		s.notice("Could not connect to relay: " + err.Error())
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.state != StateConnecting {
		// Close raced with the dial.
		s.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrTransportClosed
	}
	s.conn = conn
	s.cancel = cancel
	s.state = StateConnected
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("connected to relay")
	s.notifyState(StateConnected, addr)

	go s.receiveLoop(loopCtx, conn)
	return nil
}

// Send encodes and writes m. Failures are not returned; they reach the
// presentation layer as a local system notice.
func (s *Session) Send(ctx context.Context, m proto.Message) {
	s.send(ctx, m, "Error sending message")
}

// SendText sends a chat line stamped with the current wall clock.
func (s *Session) SendText(ctx context.Context, content string) {
	s.Send(ctx, proto.NewText(s.opts.Username, content, s.opts.Now()))
}

// SendFile shares a file payload under filename.
func (s *Session) SendFile(ctx context.Context, filename string, data []byte) {
	s.send(ctx, proto.NewFile(s.opts.Username, filename, data, s.opts.Now()), "Error uploading file")
}

func (s *Session) send(ctx context.Context, m proto.Message, failure string) {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != StateConnected {
		s.notice(fmt.Sprintf("%s: %v", failure, ErrNotConnected))
		return
	}

	frame, err := proto.Encode(m)
	if err != nil {
		s.notice(fmt.Sprintf("%s: %v", failure, err))
		return
	}
	if err := conn.WriteFrame(ctx, frame); err != nil {
		s.log.Warn().Err(err).Msg("send to relay")
		s.notice(fmt.Sprintf("%s: %v", failure, err))
		if !errors.Is(err, transport.ErrFrameTooLarge) {
			s.finish(fmt.Errorf("%w: %v", ErrTransportClosed, err).Error())
		}
	}
}

// receiveLoop runs for the lifetime of the connected state. It never
// returns errors to a caller; it logs, closes the session and exits.
func (s *Session) receiveLoop(ctx context.Context, conn transport.Conn) {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			if s.State() != StateConnected {
				return
			}
			s.log.Info().Err(err).Msg("relay connection ended")
			detail := fmt.Errorf("%w: %v", ErrTransportClosed, err).Error()
			if s.finish(detail) {
				s.notice("Disconnected from relay: " + detail)
			}
			return
		}

		m, err := proto.Decode(frame)
		if err != nil {
			s.log.Warn().Err(err).Msg("receive from relay")
			if s.finish(err.Error()) {
				s.notice("Disconnected from relay: " + err.Error())
			}
			return
		}
		s.emit(m)
	}
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.finish("closed by user")
	return nil
}

// finish moves to the closed state exactly once and reports the transition.
// It returns false if the session was already closed.
func (s *Session) finish(detail string) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	close(s.done)

	s.notifyState(StateClosed, detail)
	return true
}

func (s *Session) notice(content string) {
	s.emit(proto.NewSystem(content))
}

func (s *Session) emit(m proto.Message) {
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(m)
	}
}

func (s *Session) notifyState(state State, detail string) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(state, detail)
	}
}
