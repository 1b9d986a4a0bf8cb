package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/vote-aggregator/internal/ports/inbound"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string

	// AllowedOrigins lists the CORS origins; empty or "*" allows any.
	AllowedOrigins []string

	// Logger for the server
	Logger *slog.Logger

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses. Must exceed the slowest aggregation.
	WriteTimeout time.Duration
}

// ServerConfigDefaults returns a config with default values.
func ServerConfigDefaults() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		Logger:         slog.Default(),
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   60 * time.Second,
	}
}

// Server serves the API and health endpoints on one listener.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// Service is what the server exposes: the aggregation use case and its health.
type Service interface {
	inbound.VoteAggregationService
	inbound.HealthChecker
}

// NewServer creates a new API server.
func NewServer(config ServerConfig, service Service, shuttingDown *atomic.Bool) *Server {
	defaults := ServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	mux := http.NewServeMux()
	NewHandler(service, config.Logger).RegisterRoutes(mux)
	NewHealth(service, service, shuttingDown, config.Logger).RegisterRoutes(mux)

	return &Server{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      CORS(config.AllowedOrigins, mux),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		logger: config.Logger.With("component", "http-server"),
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening. It fails fast when the address cannot be bound and
// serves in a goroutine afterwards; serve errors are sent to the returned channel.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, err
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Shutdown gracefully stops the server, letting in-flight requests finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
