// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Defaults applied by NewHTTPServer for zero fields.
const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultTransferTimeout = 15 * time.Minute
)

// HTTPServer runs an http.Handler on a TCP listener until its context
// is cancelled, then drains in-flight requests. With a certificate
// configured it speaks HTTPS, which iOS requires for over-the-air
// installs unless a TLS-terminating proxy sits in front.
type HTTPServer struct {
	config HTTPServerConfig

	// ready is closed once the listener is bound.
	ready chan struct{}
	addr  net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address (e.g., "127.0.0.1:8000",
	// ":0" for an OS-assigned port). Required.
	Address string

	// Handler serves every request. Required.
	Handler http.Handler

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// TLSCertFile and TLSKeyFile are PEM files. Both or neither.
	TLSCertFile string
	TLSKeyFile  string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// TransferTimeout bounds reading one request and writing one
	// response. Uploads and downloads carry whole build artifacts, so
	// it is generous.
	TransferTimeout time.Duration
}

// NewHTTPServer validates config and returns a server. It panics on a
// missing required field, which is a programming error.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	switch {
	case config.Address == "":
		panic("service.HTTPServer: Address is required")
	case config.Handler == nil:
		panic("service.HTTPServer: Handler is required")
	case config.Logger == nil:
		panic("service.HTTPServer: Logger is required")
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.TransferTimeout == 0 {
		config.TransferTimeout = DefaultTransferTimeout
	}
	return &HTTPServer{config: config, ready: make(chan struct{})}
}

// Ready is closed once the server accepts connections.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. Valid after Ready is closed.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// TLS reports whether the server terminates TLS itself.
func (s *HTTPServer) TLS() bool {
	return s.config.TLSCertFile != ""
}

// Serve binds the listener and serves until ctx is cancelled. Errors
// loading the certificate or binding the address are returned before
// Ready is closed.
func (s *HTTPServer) Serve(ctx context.Context) error {
	tlsConfig, err := s.tlsConfig()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}
	s.addr = listener.Addr()

	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.TransferTimeout,
		WriteTimeout:      s.config.TransferTimeout,
		IdleTimeout:       time.Minute,
		ErrorLog:          slog.NewLogLogger(s.config.Logger.Handler(), slog.LevelWarn),
	}

	failed := make(chan error, 1)
	go func() {
		failed <- server.Serve(listener)
	}()
	close(s.ready)
	s.config.Logger.Info("http server listening",
		"address", s.addr.String(),
		"tls", tlsConfig != nil,
	)

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.config.Logger.Info("http server draining", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		// Transfers still running past the deadline are cut off.
		server.Close()
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.config.Logger.Info("http server stopped")
	return nil
}

func (s *HTTPServer) tlsConfig() (*tls.Config, error) {
	certFile, keyFile := s.config.TLSCertFile, s.config.TLSKeyFile
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("TLS needs both a certificate and a key file")
	}
	certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// CheckToken reports whether presented equals expected, in time that
// does not depend on where they differ. An empty expected token
// accepts everything; an empty presented token never matches a
// configured one.
func CheckToken(expected, presented string) bool {
	if expected == "" {
		return true
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
