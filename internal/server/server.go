// Package server is the kiosk's HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
	"github.com/alanyoungcy/auctionkiosk/internal/server/handler"
	"github.com/alanyoungcy/auctionkiosk/internal/server/middleware"
	"github.com/alanyoungcy/auctionkiosk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the number of requests per RateWindow allowed per
	// client IP. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Sessions *handler.SessionHandler
	Auctions *handler.AuctionHandler
}

// Server is the kiosk API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	sh := handlers.Sessions
	mux.HandleFunc("POST /api/sessions", sh.Begin)
	mux.HandleFunc("GET /api/sessions/{id}", sh.Get)
	mux.HandleFunc("DELETE /api/sessions/{id}", sh.End)
	mux.HandleFunc("PUT /api/sessions/{id}/details", sh.UpdateDetails)
	mux.HandleFunc("PUT /api/sessions/{id}/bid", sh.SetBid)
	mux.HandleFunc("POST /api/sessions/{id}/fulfill", sh.Fulfill)
	mux.HandleFunc("POST /api/sessions/{id}/raise", sh.Raise)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", sh.Cancel)
	mux.HandleFunc("POST /api/sessions/{id}/pin", sh.ConfirmPIN)
	mux.HandleFunc("GET /api/sessions/{id}/events", sh.Events)
	mux.HandleFunc("GET /api/sessions/{id}/runs", sh.Runs)
	mux.HandleFunc("GET /api/sessions/{id}/receipt", sh.Receipt)

	mux.HandleFunc("POST /api/bidder-details", handlers.Auctions.SendBidderDetails)
	mux.HandleFunc("GET /api/auctions/{id}/runs", handlers.Auctions.ListRuns)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		// Cancel waits for the run to wind down before answering.
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
