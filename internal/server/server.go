// Package server serves the portal's static files from a local directory on an ephemeral
// loopback port for the duration of a smoke run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/common"
)

// DefaultHost is the loopback address the server binds to.
const DefaultHost = "127.0.0.1"

// Server manages the asset HTTP server
type Server struct {
	root    string
	host    string
	logger  arbor.ILogger
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a server for the files under root. An empty host binds DefaultHost and a nil
// logger uses the global logger.
func New(root, host string, logger arbor.ILogger) (*Server, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve served root %s: %w", root, err)
	}
	if host == "" {
		host = DefaultHost
	}
	if logger == nil {
		logger = common.GetLogger()
	}

	s := &Server{
		root:   abs,
		host:   host,
		logger: logger,
	}
	s.handler = s.withMiddleware(s.setupRoutes())
	return s, nil
}

// Root returns the absolute served directory
func (s *Server) Root() string {
	return s.root
}

// ServeHTTP serves a single request through the middleware chain
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start binds an ephemeral port, begins serving in the background and returns the base URL
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return "", errors.New("server already started")
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, "0"))
	if err != nil {
		return "", fmt.Errorf("failed to bind asset server: %w", err)
	}

	s.listener = listener
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv, done := s.server, s.done
	common.SafeGo(s.logger, "asset-server", func() {
		defer close(done)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Asset server stopped unexpectedly")
		}
	})

	url := "http://" + listener.Addr().String()
	s.logger.Info().
		Str("url", url).
		Str("root", s.root).
		Msg("Asset server started")
	return url, nil
}

// Shutdown stops the server and waits for the accept loop to exit. Safe to call when not started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info().Msg("Asset server stopped")
	return nil
}
