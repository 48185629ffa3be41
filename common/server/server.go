// Package server runs an HTTP handler with graceful shutdown on
// SIGINT/SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiwf/engine/common/logger"
)

const shutdownTimeout = 30 * time.Second

// Server wraps http.Server with signal handling so every binary shuts
// down the same way.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
}

func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log:  log,
		name: name,
	}
}

// Run serves until the process receives an interrupt, then drains
// in-flight requests before returning.
func (s *Server) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "service", s.name, "addr", s.httpServer.Addr)
		serveErr <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "service", s.name, "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed, closing", "error", err)
			return s.httpServer.Close()
		}
		s.log.Info("shutdown complete", "service", s.name)
	}
	return nil
}
