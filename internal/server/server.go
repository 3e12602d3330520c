// Package server wires the HTTP API: routes, middleware, and the WebSocket
// endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainbazaar/escrowd/internal/domain"
	"github.com/chainbazaar/escrowd/internal/server/handler"
	"github.com/chainbazaar/escrowd/internal/server/middleware"
	"github.com/chainbazaar/escrowd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per second per client; zero disables
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Listings *handler.ListingHandler
	Audit    *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server for the escrow engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil;
// rate limiting is then disabled regardless of cfg.RateLimit.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("GET /api/listings/{contract}/{token}", handlers.Listings.GetListing)
	mux.HandleFunc("PUT /api/listings/{contract}/{token}", handlers.Listings.UpdateListing)
	mux.HandleFunc("DELETE /api/listings/{contract}/{token}", handlers.Listings.CancelListing)
	mux.HandleFunc("POST /api/listings/{contract}/{token}/purchase", handlers.Listings.PurchaseListing)

	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
