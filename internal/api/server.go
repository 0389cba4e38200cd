// Package api exposes the scanner's state over HTTP: live registry, account
// and position rollups plus the daily snapshot time series.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/position-scanner/internal/config"
	"github.com/position-scanner/internal/logging"
	"github.com/position-scanner/internal/models"
)

// Store interfaces for dependency injection and testing

// RegistryReader serves live registry state.
type RegistryReader interface {
	Get(ctx context.Context, id common.Address) (*models.Registry, error)
}

// AccountReader serves live smart account state.
type AccountReader interface {
	Get(ctx context.Context, id common.Address) (*models.SmartAccount, error)
}

// PositionReader serves live position state.
type PositionReader interface {
	Get(ctx context.Context, id common.Address) (*models.Position, error)
	ListByOwner(ctx context.Context, ownerID common.Address) ([]*models.Position, error)
}

// DailyReader serves the snapshot time series.
type DailyReader interface {
	ListRegistryDailyRange(ctx context.Context, registryID common.Address, from, to int64) ([]*models.RegistryDailyData, error)
	ListSmartAccountDailyRange(ctx context.Context, accountID common.Address, from, to int64) ([]*models.SmartAccountDailyData, error)
	ListPositionDailyRange(ctx context.Context, positionID common.Address, from, to int64) ([]*models.PositionDailyData, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	registries RegistryReader
	accounts   AccountReader
	positions  PositionReader
	daily      DailyReader
	db         Pinger
	logger     *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(
	cfg *config.ServerConfig,
	registries RegistryReader,
	accounts AccountReader,
	positions PositionReader,
	daily DailyReader,
	db Pinger,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:     mux.NewRouter(),
		registries: registries,
		accounts:   accounts,
		positions:  positions,
		daily:      daily,
		db:         db,
		logger:     logger,
	}

	s.setupRouter(cfg)

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter(cfg *config.ServerConfig) {
	// Middleware order matters: request id first so logging can emit it.
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/registries/{address}", s.handleGetRegistry).Methods("GET")
	api.HandleFunc("/registries/{address}/daily", s.handleGetRegistryDaily).Methods("GET")

	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/positions", s.handleGetAccountPositions).Methods("GET")
	api.HandleFunc("/accounts/{address}/daily", s.handleGetAccountDaily).Methods("GET")

	api.HandleFunc("/positions/{address}", s.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions/{address}/daily", s.handleGetPositionDaily).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"service": "position-scanner",
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "position-scanner",
	})
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
