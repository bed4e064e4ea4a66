// Package httpapi exposes the core's operations over HTTP plus a
// per-connection server-sent event stream. It is a thin transport:
// every rule lives in the services it fronts.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server represents the HTTP server lifecycle.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

func NewServer(log *slog.Logger, host string, port int, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start begins listening for HTTP traffic. Blocks until Shutdown.
func (s *Server) Start() error {
	s.log.Info("Starting http server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully terminates all active connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
