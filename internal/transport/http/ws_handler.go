package http

import (
	stdhttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/incognito-relay/internal/core"
	"github.com/vovakirdan/incognito-relay/internal/transport"
)

// WSHandler upgrades HTTP connections and hands them to the hub like any
// accepted TCP connection.
type WSHandler struct {
	hub          *core.Hub
	maxFrameSize int
	log          *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. A nil logger disables logging.
func NewWSHandler(hub *core.Hub, maxFrameSize int, logger *zerolog.Logger) stdhttp.Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &WSHandler{hub: hub, maxFrameSize: maxFrameSize, log: logger}
}

// ServeHTTP runs outside gin, so it tags and logs the request itself. The
// access line is written when the connection ends.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	start := time.Now()

	reqID := r.Header.Get(headerRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(headerRequestID, reqID)

	logger := h.log.With().
		Str("request_id", reqID).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	conn, err := transport.AcceptWebSocket(w, r, h.maxFrameSize)
	if err != nil {
		// Accept has already replied with an error status.
		logger.Warn().Err(err).Msg("ws accept error")
		return
	}

	// ServeConn owns the connection from here and closes it on return.
	err = h.hub.ServeConn(r.Context(), conn)

	logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", stdhttp.StatusSwitchingProtocols).
		Dur("latency", time.Since(start)).
		AnErr("cause", err).
		Msg("http request")
}
