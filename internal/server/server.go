// Package server owns the HTTP process: routing, background components and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// ShutdownFunc is a function that shuts down a component gracefully.
type ShutdownFunc func(ctx context.Context) error

// RunFunc is a long-lived component. It must return once ctx is cancelled.
type RunFunc func(ctx context.Context) error

// Config holds the listener settings.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type background struct {
	name string
	run  RunFunc
}

// Server wraps http.Server with background components and graceful shutdown.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu            sync.Mutex
	shutdownFuncs []ShutdownFunc
	components    []background
}

// New creates a new Server instance.
func New(handler http.Handler, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

// Background registers a component started by Run and cancelled when the
// server shuts down, after HTTP has stopped accepting requests.
func (s *Server) Background(name string, run RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, background{name: name, run: run})
}

// OnShutdown registers a function to be called during graceful shutdown.
// Functions run in reverse registration order once background components have stopped.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownFuncs = append(s.shutdownFuncs, func(ctx context.Context) error {
		s.logger.Info("shutting down component", "name", name)
		if err := fn(ctx); err != nil {
			s.logger.Error("component shutdown error", "name", name, "error", err)
			return fmt.Errorf("%s: %w", name, err)
		}
		s.logger.Info("component stopped", "name", name)
		return nil
	})
}

// Run serves HTTP and the background components until ctx is cancelled, then
// shuts everything down. A component that fails triggers shutdown as well.
func (s *Server) Run(ctx context.Context) error {
	bgCtx, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	serverErr := make(chan error, 1)
	componentErr := make(chan error, 1)

	s.mu.Lock()
	components := s.components
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(c background) {
			defer wg.Done()
			s.logger.Info("component starting", "name", c.name)
			if err := c.run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("component failed", "name", c.name, "error", err)
				select {
				case componentErr <- fmt.Errorf("%s: %w", c.name, err):
				default:
				}
			}
		}(c)
	}

	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var cause error
	select {
	case err := <-serverErr:
		cancelBG()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	case err := <-componentErr:
		cause = err
	case <-ctx.Done():
		s.logger.Info("shutdown requested", "reason", context.Cause(ctx))
	}

	return multierr.Append(cause, s.gracefulShutdown(cancelBG, &wg))
}

// gracefulShutdown stops HTTP, then background components, then the registered hooks.
func (s *Server) gracefulShutdown(cancelBG context.CancelFunc, wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs error

	s.logger.Info("phase 1: stopping HTTP server", "timeout", s.shutdownTimeout)
	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		errs = multierr.Append(errs, err)
	}
	s.logger.Info("HTTP server stopped")

	s.logger.Info("phase 2: stopping background components")
	cancelBG()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = multierr.Append(errs, errors.New("background components did not stop in time"))
	}

	s.mu.Lock()
	funcs := s.shutdownFuncs
	s.mu.Unlock()

	s.logger.Info("phase 3: running shutdown hooks", "count", len(funcs))
	for i := len(funcs) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, funcs[i](ctx))
	}

	if errs != nil {
		s.logger.Error("shutdown completed with errors", "error_count", len(multierr.Errors(errs)))
		return errs
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
