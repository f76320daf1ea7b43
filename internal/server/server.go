// Package server runs the HTTP listener.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"edge-redirector/internal/common/logging"
)

// Server represents an HTTP server
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
	addr    net.Addr
	errs    chan error
}

// New creates a new server instance. TLS is used when both tlsCert and tlsKey are set.
func New(handler http.Handler, port, tlsCert, tlsKey string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
		errs:    make(chan error, 1),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly; later serve errors are delivered on Errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	s.addr = ln.Addr()

	useTLS := s.tlsCert != "" && s.tlsKey != ""
	if useTLS {
		s.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	logging.Info("HTTP server listening",
		logging.String("addr", ln.Addr().String()),
		logging.String("scheme", scheme),
	)

	go func() {
		var err error
		if useTLS {
			err = s.srv.ServeTLS(ln, s.tlsCert, s.tlsKey)
		} else {
			err = s.srv.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			s.errs <- err
		}
		close(s.errs)
	}()
	return nil
}

// Addr returns the bound listener address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Errors is closed when the server stops; it carries the serve error if any.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
