package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/bago/internal/application/batch"
	"github.com/aescanero/bago/internal/application/correlation"
	"github.com/aescanero/bago/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	executor  *batch.Executor
	tracker   *correlation.Tracker
	deliverer ports.Deliverer
	responses ports.ResponseStore
	logger    *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port      int
	Executor  *batch.Executor
	Tracker   *correlation.Tracker
	Deliverer ports.Deliverer
	Responses ports.ResponseStore
	Logger    *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router:    router,
		executor:  cfg.Executor,
		tracker:   cfg.Tracker,
		deliverer: cfg.Deliverer,
		responses: cfg.Responses,
		logger:    cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Batch endpoints
		v1.POST("/batches", s.handleExecuteBatch)
		v1.GET("/batches", s.handleListBatches)
		v1.GET("/batches/:id", s.handleGetBatch)
		v1.POST("/batches/:id/abort", s.handleAbortBatch)

		// Out-of-band reply side channel
		v1.POST("/replies", s.handleReply)
	}
}

// SetupWebSocket adds a WebSocket event stream handler to the server
func (s *Server) SetupWebSocket(handler interface {
	HandleBatchStream(*gin.Context)
}) {
	s.router.GET("/api/v1/batches/:id/ws", handler.HandleBatchStream)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
