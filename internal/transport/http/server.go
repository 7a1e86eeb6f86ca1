package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/incognito-relay/internal/config"
	"github.com/vovakirdan/incognito-relay/internal/core"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Members []string `json:"members"`
}

// NewServer builds the optional HTTP gateway: a health probe and a WebSocket
// entry into the same hub the TCP listener feeds.
//
// /ws is mounted on a plain mux in front of gin: the upgrade has to hijack
// the net/http writer, which gin's wrapped writer refuses once a status is set.
func NewServer(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))
	router.GET("/health", healthHandler(hub))

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg.MaxMessageSize, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, HealthResponse{Status: "ok", Members: hub.Members()})
	}
}
