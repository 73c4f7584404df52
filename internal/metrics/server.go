package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/logger"
)

// Server is a standalone HTTP server exposing the collector's registry on
// /metrics. The relay command runs one next to its streaming loop.
type Server struct {
	httpServer *http.Server
	addr       string
	collector  *Collector
	log        zerolog.Logger
	ready      bool
	mu         sync.Mutex
}

// NewServer creates a metrics server for the collector.
func NewServer(addr string, collector *Collector) *Server {
	return &Server{
		addr:      addr,
		collector: collector,
		log:       logger.WithComponent("metrics.server"),
	}
}

// Start begins serving. It returns once the listener goroutine is launched.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	s.ready = true
	s.log.Info().Str("addr", s.addr).Msg("Metrics server started")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return err
	}
	s.ready = false
	s.log.Info().Msg("Metrics server stopped")
	return nil
}
