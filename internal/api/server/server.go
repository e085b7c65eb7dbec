package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/api/middleware"
	"github.com/seatrail/ticket-ledger/internal/api/rest"
	"github.com/seatrail/ticket-ledger/internal/contract"
	"github.com/seatrail/ticket-ledger/internal/logger"
)

// Config holds the server configuration
type Config struct {
	Debug              bool
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	JWTPublicKey       string
	CORSAllowedOrigins []string
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	contract   *contract.Contract
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, contract *contract.Contract) *Server {
	return &Server{
		config:   cfg,
		contract: contract,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS(s.config.CORSAllowedOrigins))

	restHandler := rest.NewHandler(s.config.Debug, s.contract)
	authCfg := middleware.AuthConfig{JWTPublicKey: s.config.JWTPublicKey}
	rest.SetupRoutes(router, restHandler, authCfg)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
