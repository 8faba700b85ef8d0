// Package server assembles the HTTP + WebSocket API: routing, middleware, and
// graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/azubet/azubet/internal/domain"
	"github.com/azubet/azubet/internal/server/handler"
	"github.com/azubet/azubet/internal/server/middleware"
	"github.com/azubet/azubet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIToken    string // if empty, authentication is disabled

	// Limiter enables per-client request limiting when set.
	Limiter         domain.RateLimiter
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Bets      *handler.BetHandler
	Cashout   *handler.CashoutHandler
	Payouts   *handler.PayoutHandler
	Reconcile *handler.ReconcileHandler
	Odds      *handler.OddsHandler
	Audit     *handler.AuditHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required in the handler; the auth middleware
	// still guards it when a token is configured).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Bet endpoints.
	mux.HandleFunc("GET /api/bets", handlers.Bets.ListBets)
	mux.HandleFunc("POST /api/bets", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /api/bets/{localId}", handlers.Bets.GetBet)

	// Cashout endpoints.
	mux.HandleFunc("GET /api/bets/{localId}/cashout", handlers.Cashout.Availability)
	mux.HandleFunc("GET /api/bets/{localId}/cashout/quote", handlers.Cashout.Quote)
	mux.HandleFunc("POST /api/bets/{localId}/cashout", handlers.Cashout.Execute)
	mux.HandleFunc("GET /api/cashouts/{id}", handlers.Cashout.Status)

	// Payout endpoints.
	mux.HandleFunc("POST /api/bets/{localId}/withdraw", handlers.Payouts.Withdraw)
	mux.HandleFunc("POST /api/payouts/cancel-stuck", handlers.Payouts.CancelStuck)

	// Reconciliation triggers.
	mux.HandleFunc("POST /api/reconcile", handlers.Reconcile.Trigger)
	mux.HandleFunc("POST /api/reconcile/recover", handlers.Reconcile.Recover)

	// Live odds.
	mux.HandleFunc("GET /api/odds/{conditionId}", handlers.Odds.GetConditionOdds)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIToken)(h)
	if cfg.Limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimitPerMin, time.Minute)(h)
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
