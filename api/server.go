package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/c360/varmsg/errors"
)

// Server runs the API on a TCP port
type Server struct {
	port    int
	handler http.Handler
	logger  *slog.Logger
	tls     *tls.Config

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	errc   chan error
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithTLS serves HTTPS with cfg. nil keeps plain HTTP.
func WithTLS(cfg *tls.Config) ServerOption {
	return func(s *Server) { s.tls = cfg }
}

// NewServer creates a server for handler. Port 0 picks a free port.
func NewServer(port int, handler http.Handler, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{port: port, handler: handler, logger: logger.With("component", "http")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "check running state")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on port %d", s.port))
	}

	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.addr = ln.Addr()

	srv := s.server
	errc := make(chan error, 1)
	s.errc = errc
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", "error", err)
			errc <- errors.WrapFatal(err, "Server", "Serve", "serve HTTP")
		}
		close(errc)
	}()
	s.logger.Info("HTTP server listening", "addr", s.addr.String(), "tls", s.tls != nil)
	return nil
}

// Serve starts the server and blocks until ctx is cancelled or serving
// fails. Cancellation drains in-flight requests for up to drain.
func (s *Server) Serve(ctx context.Context, drain time.Duration) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	errc := s.errc
	s.mu.Unlock()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Addr returns the listen address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Shutdown", "drain HTTP server")
	}
	return nil
}
