package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/incognito-relay/internal/proto"
	"github.com/vovakirdan/incognito-relay/internal/transport"
	"github.com/vovakirdan/incognito-relay/internal/utils"
)

// Hub runs the per-connection handlers and fans messages out to every
// registered peer. It is shared by all listeners.
type Hub struct {
	registry *Registry
	log      *zerolog.Logger

	mu     sync.Mutex
	live   map[*Peer]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a hub with an empty registry. A nil logger disables logging.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry: NewRegistry(),
		log:      logger,
		live:     make(map[*Peer]struct{}),
	}
}

// Registry exposes the membership for read-only inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Members returns the usernames currently registered.
func (h *Hub) Members() []string {
	snapshot := h.registry.Snapshot()
	names := make([]string, 0, len(snapshot))
	for _, m := range snapshot {
		names = append(names, m.Username)
	}
	return names
}

// ServeConn runs the handler for one accepted connection and blocks until it
// ends. The connection is always closed on return.
func (h *Hub) ServeConn(ctx context.Context, conn transport.Conn) error {
	peer := NewPeer(utils.NewID(), conn)
	if err := h.track(peer); err != nil {
		_ = conn.Close()
		return err
	}
	defer h.untrack(peer)

	logger := h.log.With().
		Str("peer_id", peer.ID).
		Str("remote_addr", conn.RemoteAddr()).
		Logger()
	logger.Info().Msg("new connection")

	// Closing the transport is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = peer.close() })
	defer stop()

	err := h.handle(ctx, peer, &logger)
	h.cleanup(ctx, peer, err, &logger)
	return err
}

func (h *Hub) handle(ctx context.Context, peer *Peer, logger *zerolog.Logger) error {
	first, err := h.readMessage(ctx, peer)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}
	if first.msg.Type != proto.TypeConnect {
		return fmt.Errorf("%w: first message has type %q", ErrProtocolViolation, first.msg.Type)
	}

	username := first.msg.Username
	if !h.registry.Register(peer, username) {
		return ErrAlreadyRegistered
	}
	logger.Info().Str("username", username).Int("members", h.registry.Len()).Msg("user connected")
	h.broadcastExcept(ctx, proto.JoinedNotice(username), peer)

	for {
		in, err := h.readMessage(ctx, peer)
		if err != nil {
			return err
		}
		logger.Debug().Str("type", string(in.msg.Type)).Int("bytes", len(in.frame)).Msg("relay message")
		// Re-encode rather than forward the inbound bytes: a WebSocket frame
		// may carry raw newlines that would split a stream peer's framing.
		h.Broadcast(ctx, in.msg)
	}
}

type inbound struct {
	frame []byte
	msg   proto.Message
}

func (h *Hub) readMessage(ctx context.Context, peer *Peer) (inbound, error) {
	frame, err := peer.conn.ReadFrame(ctx)
	if err != nil {
		return inbound{}, err
	}
	msg, err := proto.Decode(frame)
	if err != nil {
		return inbound{}, err
	}
	return inbound{frame: frame, msg: msg}, nil
}

// cleanup is the single terminal path for every handler, whatever ended it.
func (h *Hub) cleanup(ctx context.Context, peer *Peer, cause error, logger *zerolog.Logger) {
	switch {
	case cause == nil || transport.IsClosed(cause):
		logger.Info().Msg("connection closed")
	case errors.Is(cause, proto.ErrMalformedMessage), errors.Is(cause, ErrProtocolViolation):
		logger.Warn().Err(cause).Msg("dropping misbehaving connection")
	default:
		logger.Warn().Err(cause).Msg("connection error")
	}

	if username, ok := h.registry.Unregister(peer); ok {
		logger.Info().Str("username", username).Int("members", h.registry.Len()).Msg("user disconnected")
		// The handler context may already be cancelled during shutdown.
		h.broadcastExcept(context.WithoutCancel(ctx), proto.LeftNotice(username), peer)
	}

	if err := peer.close(); err != nil && !transport.IsClosed(err) {
		logger.Debug().Err(err).Msg("close transport")
	}
}

// Broadcast delivers m to every registered peer, the originator included.
func (h *Hub) Broadcast(ctx context.Context, m proto.Message) {
	h.broadcastExcept(ctx, m, nil)
}

func (h *Hub) broadcastExcept(ctx context.Context, m proto.Message, except *Peer) {
	frame, err := proto.Encode(m)
	if err != nil {
		h.log.Error().Err(err).Msg("encode broadcast")
		return
	}
	h.broadcastFrame(ctx, frame, except)
}

// broadcastFrame writes to a snapshot of the registry taken under the lock;
// the writes themselves happen outside it. A failed recipient is only logged,
// its own handler is responsible for removing it.
func (h *Hub) broadcastFrame(ctx context.Context, frame []byte, except *Peer) {
	for _, member := range h.registry.Snapshot() {
		if member.Peer == except {
			continue
		}
		if err := member.Peer.Send(ctx, frame); err != nil {
			h.log.Warn().
				Err(err).
				Str("peer_id", member.Peer.ID).
				Str("username", member.Username).
				Msg("broadcast write failed")
		}
	}
}

func (h *Hub) track(p *Peer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.live[p] = struct{}{}
	h.wg.Add(1)
	return nil
}

func (h *Hub) untrack(p *Peer) {
	h.mu.Lock()
	delete(h.live, p)
	h.mu.Unlock()
	h.wg.Done()
}

// Close stops accepting new connections into the hub and closes every live
// transport, which unblocks their handlers.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	peers := make([]*Peer, 0, len(h.live))
	for p := range h.live {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		_ = p.close()
	}
	h.log.Info().Int("connections", len(peers)).Msg("hub closed")
}

// Wait blocks until every handler has returned or ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
