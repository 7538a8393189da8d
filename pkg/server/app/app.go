// pkg/server/app/app.go

// Package app assembles the HTTP server runtime: listener, router, job
// workers and readiness lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scanmux/scanmux/pkg/config"
	"github.com/scanmux/scanmux/pkg/server/deps"
	"github.com/scanmux/scanmux/pkg/server/httpx"
)

// App is the assembled server. Create with New, drive with Run.
type App struct {
	server *http.Server
	deps   *deps.Deps
	logger zerolog.Logger
}

// New builds the server around the shared dependencies. The listener is not
// opened until Run.
func New(ctx context.Context, cfg config.ServerConfig, d *deps.Deps) (*App, error) {
	if d == nil {
		return nil, errors.New("server dependencies are required")
	}

	router := httpx.NewRouter(cfg, d.API())

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
		Handler:      router,
		ReadTimeout:  parseTimeout(cfg.Timeouts.Read, 15*time.Second),
		WriteTimeout: parseTimeout(cfg.Timeouts.Write, 30*time.Second),
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	return &App{
		server: server,
		deps:   d,
		logger: log.With().Str("component", "server").Logger(),
	}, nil
}

// Run serves until ctx is cancelled, then drains: readiness flips off, the
// listener shuts down, and in-flight scan jobs are cancelled and awaited.
// Returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	// Workers get their own cancellation so scans survive client hangups
	// and are only aborted once the HTTP side has drained.
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	if err := a.deps.Jobs.Start(jobsCtx); err != nil {
		return fmt.Errorf("start job manager: %w", err)
	}

	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if serveErr := a.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
			return
		}
		errCh <- nil
	}()

	a.deps.SetReady()
	a.logger.Info().Str("addr", listener.Addr().String()).Msg("HTTP server listening")

	select {
	case <-ctx.Done():
		a.deps.SetNotReady()
		a.logger.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Warn().Err(shutdownErr).Msg("HTTP server shutdown incomplete")
		}

		stopJobs()
		if stopErr := a.deps.Jobs.Stop(shutdownCtx); stopErr != nil {
			a.logger.Warn().Err(stopErr).Msg("Job manager stop incomplete")
		}

		<-errCh
		a.logger.Info().Msg("Server stopped")
		return nil

	case serveErr := <-errCh:
		a.deps.SetNotReady()
		if serveErr != nil {
			return fmt.Errorf("http server: %w", serveErr)
		}
		return nil
	}
}

func parseTimeout(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
