// Package server exposes the resolver, relay, catalog and user store over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/util"
)

const shutdownGrace = 30 * time.Second

// Config holds listener settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	router *http.ServeMux
	http   *http.Server
}

// New creates a server with an empty router.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, router: http.NewServeMux()}
}

// Router returns the mux handlers register on.
func (s *Server) Router() *http.ServeMux {
	return s.router
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		s.router,
		RequestID,
		Recovery,
		Logging,
		CORS,
	)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "listening on port %d", s.cfg.Port)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		util.Info("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			util.Error("server shutdown error", "error", err)
		}
	}()

	util.Info("server starting", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server error")
	}

	<-done
	util.Info("server stopped")
	return nil
}
