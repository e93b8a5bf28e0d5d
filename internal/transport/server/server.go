// Package server owns the HTTP server lifecycle so main stays small.
package server

import (
	"context"
	"net/http"
	"time"
)

// Server wraps http.Server with sane timeout defaults.
type Server struct {
	srv *http.Server
}

// Option configures the server.
type Option func(*http.Server)

// WithReadTimeout overrides the default read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.ReadTimeout = d
		}
	}
}

// WithWriteTimeout overrides the default write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.WriteTimeout = d
		}
	}
}

// New creates a server listening on addr and serving handler.
func New(addr string, handler http.Handler, opts ...Option) *Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return &Server{srv: srv}
}

// ListenAndServe starts serving. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
