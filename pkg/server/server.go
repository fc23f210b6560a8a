// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/config"
	"github.com/sellside/dealgraph/pkg/server/handlers"
)

// Server is the HTTP front end over one pipeline client.
type Server struct {
	config *config.Config
	router *gin.Engine
	client *dealgraph.Client
	server *http.Server
	logger *slog.Logger
}

// New builds a server. Call Setup before Start.
func New(cfg *config.Config, client *dealgraph.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: cfg, client: client, logger: logger}
}

// Setup wires middleware and routes and prepares the listener.
func (s *Server) Setup() {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.logger))
	s.router.Use(corsMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.client)
	ingestHandler := handlers.NewIngestHandler(s.client)
	retrieveHandler := handlers.NewRetrieveHandler(s.client)
	resolutionHandler := handlers.NewResolutionHandler(s.client)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/ready", healthHandler.Ready)
	s.router.GET("/live", healthHandler.Health)

	v1 := s.router.Group("/api/v1")
	{
		ingest := v1.Group("/ingest")
		{
			ingest.POST("/documents", ingestHandler.AddDocument)
			ingest.POST("/qa-responses", ingestHandler.AddQAResponse)
			ingest.POST("/chat-facts", ingestHandler.AddChatFact)
		}

		v1.POST("/retrieve", retrieveHandler.Search)
		v1.GET("/facts", retrieveHandler.FactAt)
		v1.GET("/episodes", ingestHandler.Episodes)

		res := v1.Group("/resolution")
		{
			res.POST("/evaluate", resolutionHandler.Evaluate)
			res.POST("/merge", resolutionHandler.Merge)
			res.POST("/split", resolutionHandler.Split)
			res.GET("/ambiguous", resolutionHandler.Ambiguous)
		}
	}
}

// Start blocks serving until Stop or a listener error.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the context's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status())
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
