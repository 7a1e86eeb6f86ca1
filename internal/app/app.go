package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/incognito-relay/internal/config"
	"github.com/vovakirdan/incognito-relay/internal/core"
	transporthttp "github.com/vovakirdan/incognito-relay/internal/transport/http"
)

// App wires together the hub and its listeners.
type App struct {
	cfg   config.Config
	hub   *core.Hub
	relay *core.Server
	http  *stdhttp.Server
	log   *zerolog.Logger

	mu       sync.Mutex
	httpAddr string
	ready    chan struct{}
}

// New constructs the relay application. The HTTP gateway is only built when
// cfg.HTTPAddr is set.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	hub := core.NewHub(logger)
	a := &App{
		cfg:   cfg,
		hub:   hub,
		relay: core.NewServer(hub, cfg.Addr, cfg.MaxMessageSize, logger),
		log:   logger,
		ready: make(chan struct{}),
	}
	if cfg.HTTPAddr != "" {
		a.http = transporthttp.NewServer(hub, cfg, logger)
	}
	return a, nil
}

// Hub exposes the shared hub.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// RelayAddr returns the bound TCP address once Ready is closed.
func (a *App) RelayAddr() string {
	return a.relay.Addr()
}

// HTTPAddr returns the bound gateway address, empty when disabled.
func (a *App) HTTPAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// Ready is closed once every listener is bound.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Run binds the listeners and serves until ctx is cancelled or a listener
// fails. Bind failures are returned before anything is served.
func (a *App) Run(ctx context.Context) error {
	if err := a.relay.Listen(); err != nil {
		return err
	}

	var httpLn net.Listener
	if a.http != nil {
		ln, err := net.Listen("tcp", a.http.Addr)
		if err != nil {
			if closeErr := a.relay.Close(); closeErr != nil {
				a.log.Warn().Err(closeErr).Msg("release relay listener")
			}
			a.hub.Close()
			return fmt.Errorf("listen http %s: %w", a.http.Addr, err)
		}
		httpLn = ln
		a.mu.Lock()
		a.httpAddr = ln.Addr().String()
		a.mu.Unlock()
		a.log.Info().Str("addr", a.httpAddr).Msg("http gateway listening")
	}
	close(a.ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.relay.Serve(gctx)
	})

	if httpLn != nil {
		g.Go(func() error {
			if err := a.http.Serve(httpLn); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http gateway: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.http != nil {
		a.log.Info().Msg("shutting down http gateway")
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	a.hub.Close()
	if err := a.hub.Wait(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("connections still open after shutdown timeout")
		errs = append(errs, err)
	}
	a.log.Info().Msg("relay stopped")
	return errors.Join(errs...)
}
