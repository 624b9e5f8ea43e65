// Package server provides the HTTP API for ragd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/orchestrator"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
}

// Server serves the multi-client document API.
type Server struct {
	echo     *echo.Echo
	provider vectorstore.Provider
	ingester *ingest.Service
	orch     *orchestrator.Orchestrator
	manager  orchestrator.GeneratorSource
	logger   *zap.Logger
	config   Config
}

// New creates the HTTP server and registers its routes.
func New(provider vectorstore.Provider, ingester *ingest.Service, orch *orchestrator.Orchestrator, manager orchestrator.GeneratorSource, logger *zap.Logger, cfg Config) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("store provider is required")
	}
	if ingester == nil || orch == nil || manager == nil {
		return nil, fmt.Errorf("ingest service, orchestrator, and generation manager are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	cfg.ApplyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		provider: provider,
		ingester: ingester,
		orch:     orch,
		manager:  manager,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes(metrics)

	return s, nil
}

func (s *Server) registerRoutes(metrics *Metrics) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	s.echo.GET("/clients", s.handleListClients)

	clients := s.echo.Group("/clients/:client_id")
	clients.POST("/ingest", s.handleIngest)
	clients.POST("/query", s.handleQuery)
	clients.GET("/documents", s.handleListDocuments)
	clients.DELETE("/documents", s.handleClearDocuments)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Model:  s.manager.ModelInfo().Model,
	})
}

func (s *Server) handleListClients(c echo.Context) error {
	clients, err := s.provider.ListClients(c.Request().Context())
	if err != nil {
		s.logger.Error("listing clients failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list clients")
	}
	if clients == nil {
		clients = []string{}
	}
	return c.JSON(http.StatusOK, ClientsResponse{Clients: clients})
}

func (s *Server) handleIngest(c echo.Context) error {
	clientID := c.Param("client_id")

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document_name field is required")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	n, err := s.ingester.IngestText(c.Request().Context(), clientID, req.DocumentName, "", req.Text, req.Metadata)
	if err != nil {
		if errors.Is(err, vectorstore.ErrInvalidClientID) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("ingestion failed",
			zap.String("client_id", clientID),
			zap.String("document", req.DocumentName),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}

	return c.JSON(http.StatusOK, IngestResponse{
		ClientID:     clientID,
		DocumentName: req.DocumentName,
		ChunksStored: n,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	clientID := c.Param("client_id")

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.orch.AnswerQuery(c.Request().Context(), clientID, req.Query, orchestrator.Options{
		TopK:          req.TopK,
		IncludeChunks: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyQuery),
			errors.Is(err, orchestrator.ErrInvalidTopK),
			errors.Is(err, vectorstore.ErrInvalidClientID):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("query failed", zap.String("client_id", clientID), zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
		}
	}

	chunks := result.RetrievedChunks
	if chunks == nil {
		chunks = []vectorstore.SearchResult{}
	}
	resp := QueryResponse{
		Query:                 req.Query,
		Answer:                result.Answer,
		Sources:               result.Sources,
		RetrievedChunks:       chunks,
		ContextChunksUsed:     result.ContextChunksUsed,
		GenerationTimeSeconds: result.GenerationTimeSeconds,
		Model:                 result.Model,
	}
	if result.Err != nil {
		resp.Degraded = true
		resp.Error = result.Err.Error()
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	clientID := c.Param("client_id")
	ctx := c.Request().Context()

	store, err := s.provider.GetClientStore(ctx, clientID)
	if err != nil {
		if errors.Is(err, vectorstore.ErrInvalidClientID) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("opening client store failed", zap.String("client_id", clientID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open client store")
	}

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		s.logger.Error("listing documents failed", zap.String("client_id", clientID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents")
	}
	if docs == nil {
		docs = []string{}
	}

	return c.JSON(http.StatusOK, DocumentsResponse{ClientID: clientID, Documents: docs})
}

func (s *Server) handleClearDocuments(c echo.Context) error {
	clientID := c.Param("client_id")
	ctx := c.Request().Context()

	store, err := s.provider.GetClientStore(ctx, clientID)
	if err != nil {
		if errors.Is(err, vectorstore.ErrInvalidClientID) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("opening client store failed", zap.String("client_id", clientID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open client store")
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		s.logger.Error("clearing documents failed", zap.String("client_id", clientID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear documents")
	}

	return c.JSON(http.StatusOK, ClearResponse{
		Message:  "collection cleared",
		ClientID: clientID,
		Removed:  removed,
	})
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
