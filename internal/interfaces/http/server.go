// Package http exposes the approval engine over a JSON API.
// Handlers translate requests to engine calls and engine errors to status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestObserver records request latencies
type RequestObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Option configures optional server collaborators
type Option func(*Server)

// WithMetrics mounts the metrics handler and records request latencies
func WithMetrics(observer RequestObserver, handler http.Handler) Option {
	return func(s *Server) {
		s.observer = observer
		s.metricsHandler = handler
	}
}

// WithAuditExporter enables the workbook download route
func WithAuditExporter(exporter AuditExporter) Option {
	return func(s *Server) {
		s.exporter = exporter
	}
}

// Server is the HTTP server adapter
type Server struct {
	config         ServerConfig
	httpServer     *http.Server
	router         *gin.Engine
	engine         ApprovalEngine
	exporter       AuditExporter
	observer       RequestObserver
	metricsHandler http.Handler
	logger         Logger
}

// NewServer creates a new HTTP server for the engine
func NewServer(config ServerConfig, engine ApprovalEngine, logger Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		engine: engine,
		logger: logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if s.observer != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.observer.ObserveHTTP(method, route, status, latency)
		}

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.engine, s.exporter, s.logger)

	s.router.GET("/health", handlers.HealthCheck)
	if s.metricsHandler != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.metricsHandler))
	}

	api := s.router.Group("/api/v1")
	{
		api.POST("/chains", handlers.CreateChain)
		api.GET("/subjects/:subject_id/chain", handlers.GetChain)
		api.GET("/subjects/:subject_id/active", handlers.GetActiveInstance)
		api.GET("/subjects/:subject_id/decisions", handlers.GetDecisions)
		api.POST("/instances/:id/decisions", handlers.RecordDecision)
		api.GET("/users/:user_id/pending", handlers.PendingForUser)
		if s.exporter != nil {
			api.GET("/subjects/:subject_id/audit.xlsx", handlers.ExportAudit)
		}
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
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
