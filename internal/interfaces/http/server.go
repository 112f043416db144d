// Package http provides the HTTP adapter for the application layer.
// It translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Dependencies are the collaborators the handlers call into
type Dependencies struct {
	Requests    service.RequestService
	Combination service.CombinationService
	Ideas       service.IdeaService
	Workflow    workflow.RequestEngine
	Evaluator   *threshold.Evaluator
	Directory   port.Directory
	Activity    port.ActivityStore

	// Health reports component status for GET /health; nil reports healthy
	Health func() (healthy bool, details interface{})
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(loggingMiddleware(s.logger))
	s.router.Use(corsMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	api.Use(identityMiddleware(s.deps.Directory, s.logger))
	if s.deps.Activity != nil {
		api.Use(activityMiddleware(s.deps.Activity, s.logger))
	}
	{
		// Requests
		api.GET("/requests", h.ListRequests)
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests/:id", h.GetRequest)
		api.PATCH("/requests/:id", h.UpdateRequest)
		api.GET("/requests/:id/history", h.GetHistory)
		api.POST("/requests/:id/submit", h.SubmitRequest)
		api.POST("/requests/:id/actions", h.ActOnRequest)
		api.POST("/requests/:id/assign", h.AssignRequest)

		// Combined requests
		api.GET("/combined", h.ListCombined)
		api.POST("/combined", h.CombineRequests)
		api.GET("/combined/:id", h.GetCombined)
		api.GET("/combined/:id/export", h.ExportCombined)

		// Ideas
		api.GET("/ideas", h.ListIdeas)
		api.POST("/ideas", h.CreateIdea)
		api.GET("/ideas/:id", h.GetIdea)
		api.POST("/ideas/:id/review", h.ReviewIdea)
		api.PUT("/ideas/:id/vote", h.VoteIdea)
		api.DELETE("/ideas/:id/vote", h.RemoveVote)

		api.GET("/threshold/evaluate", h.EvaluateThreshold)
		api.GET("/users/active", h.ActiveUsers)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
