// Package server exposes the marketplace over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/server/handler"
	"github.com/tealbay/nftmarketd/internal/server/middleware"
	"github.com/tealbay/nftmarketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter enables per-client rate limiting when non-nil.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
	Trades  *handler.TradeHandler
	Royalty *handler.RoyaltyHandler
}

// Server is the headless HTTP + WebSocket API server for the marketplace.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check and status (no auth required for health).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market query endpoints.
	mux.HandleFunc("GET /api/markets/{policy}", handlers.Markets.GetSnapshot)
	mux.HandleFunc("GET /api/markets/{policy}/listings", handlers.Markets.ListListings)
	mux.HandleFunc("GET /api/markets/{policy}/bids", handlers.Markets.ListBids)
	mux.HandleFunc("GET /api/positions/{txhash}/{index}", handlers.Markets.GetPosition)
	mux.HandleFunc("GET /api/activity", handlers.Markets.ListActivity)

	// Listing transitions.
	mux.HandleFunc("POST /api/listings", handlers.Trades.CreateListing)
	mux.HandleFunc("POST /api/listings/buy", handlers.Trades.BuyBatch)
	mux.HandleFunc("PUT /api/listings/{txhash}/{index}", handlers.Trades.UpdateListing)
	mux.HandleFunc("DELETE /api/listings/{txhash}/{index}", handlers.Trades.CancelListing)
	mux.HandleFunc("POST /api/listings/{txhash}/{index}/buy", handlers.Trades.BuyListing)

	// Bid transitions.
	mux.HandleFunc("POST /api/bids", handlers.Trades.CreateBid)
	mux.HandleFunc("POST /api/bids/sell", handlers.Trades.SellBatch)
	mux.HandleFunc("PUT /api/bids/{txhash}/{index}", handlers.Trades.UpdateBid)
	mux.HandleFunc("DELETE /api/bids/{txhash}/{index}", handlers.Trades.CancelBid)
	mux.HandleFunc("POST /api/bids/{txhash}/{index}/sell", handlers.Trades.SellToBid)

	// Composite transitions.
	mux.HandleFunc("POST /api/trades/listing-to-bid", handlers.Trades.SwapListingToBid)
	mux.HandleFunc("POST /api/trades/bid-to-listing", handlers.Trades.SwapBidToListing)

	// Royalty schedule.
	mux.HandleFunc("GET /api/royalty", handlers.Markets.GetRoyalty)
	mux.HandleFunc("POST /api/royalty", handlers.Royalty.MintRoyalty)
	mux.HandleFunc("PUT /api/royalty", handlers.Royalty.UpdateRoyalty)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when configured.
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
		mux:        mux,
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

