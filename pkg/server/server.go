package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mercator-hq/aegis/pkg/gateway"
	"mercator-hq/aegis/pkg/hitl"
	"mercator-hq/aegis/pkg/server/handlers"
	"mercator-hq/aegis/pkg/telemetry/metrics"
)

// Config configures the HTTP server.
type Config struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// LockDuration is the default review dequeue lock.
	LockDuration time.Duration
}

// Server is the gateway's HTTP server.
type Server struct {
	config       Config
	orchestrator *gateway.Orchestrator
	reviews      *hitl.Service
	httpServer   *http.Server
	logger       *slog.Logger

	mu        sync.Mutex
	isRunning bool
}

// NewServer creates the server over the orchestrator and review
// service.
func NewServer(config Config, orchestrator *gateway.Orchestrator, reviews *hitl.Service) *Server {
	return &Server{
		config:       config,
		orchestrator: orchestrator,
		reviews:      reviews,
		logger:       slog.Default().With("component", "server"),
	}
}

// Handler builds the route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("POST /api/chat", handlers.NewChatHandler(s.orchestrator))

	if s.reviews != nil {
		h := handlers.NewHITLHandler(s.reviews, s.config.LockDuration)
		mux.HandleFunc("GET /api/hitl/reviews", h.List)
		mux.HandleFunc("POST /api/hitl/reviews/dequeue", h.Dequeue)
		mux.HandleFunc("GET /api/hitl/reviews/{id}", h.Get)
		mux.HandleFunc("POST /api/hitl/reviews/{id}/approve", h.Approve)
		mux.HandleFunc("POST /api/hitl/reviews/{id}/reject", h.Reject)
	}

	// Outermost first: recovery wraps everything, then tracing, then
	// the access log.
	var handler http.Handler = mux
	handler = loggingMiddleware(handler)
	handler = traceMiddleware(handler)
	handler = recoveryMiddleware(handler)
	return handler
}

// Start starts the HTTP server and blocks until ctx is cancelled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}
}

// Shutdown drains in-flight requests within the shutdown timeout.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.httpServer == nil {
		return nil
	}
	s.isRunning = false

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
