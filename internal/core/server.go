package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/incognito-relay/internal/transport"
)

// ListenerState is the lifecycle of one listening socket.
type ListenerState int32

const (
	StateStopped ListenerState = iota
	StateListening
)

func (s ListenerState) String() string {
	if s == StateListening {
		return "listening"
	}
	return "stopped"
}

// Server accepts TCP connections and hands each one to the hub.
type Server struct {
	hub          *Hub
	addr         string
	maxFrameSize int
	log          *zerolog.Logger

	state atomic.Int32

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewServer builds a TCP front end for hub.
func NewServer(hub *Hub, addr string, maxFrameSize int, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		hub:          hub,
		addr:         addr,
		maxFrameSize: maxFrameSize,
		log:          logger,
		ready:        make(chan struct{}),
	}
}

// State reports whether the server is currently accepting.
func (s *Server) State() ListenerState {
	return ListenerState(s.state.Load())
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Listen binds the configured address. A bind failure is fatal to startup.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.state.Store(int32(StateListening))
	close(s.ready)
	return nil
}

// Close releases the listener bound by Listen. Serve returns once it is
// closed. Calling Close more than once is safe.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	defer s.state.Store(int32(StateStopped))

	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// ListenAndServe binds and runs the accept loop until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on a listener bound by Listen. Each accepted
// connection gets its own handler goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("serve: listener not bound")
	}
	defer s.state.Store(int32(StateStopped))

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("relay listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info().Msg("relay listener stopped")
				return nil
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}

		go func() {
			_ = s.hub.ServeConn(ctx, transport.NewStreamConn(conn, s.maxFrameSize))
		}()
	}
}
