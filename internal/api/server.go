// Package api is the engine's HTTP Surface: session creation, the
// synchronous and streaming step endpoints, and health/metrics, all
// translating pipeline domain errors to the status codes and error
// envelope spec.md §6 defines.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomstep/engine/internal/pipeline"
	"github.com/loomstep/engine/internal/storypack"
	"github.com/loomstep/engine/internal/store"
)

// Server is the engine's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	store        *store.Store
	pipeline     *pipeline.Pipeline
	packs        *storypack.Cache
	metrics      *prometheus.Registry
	boundaryMode string
}

// NewServer wires a Server from its dependencies and registers routes.
// boundaryMode is "real" or "fake", reported by the health endpoint.
func NewServer(st *store.Store, pl *pipeline.Pipeline, packs *storypack.Cache, metrics *prometheus.Registry, boundaryMode string) *Server {
	e := echo.New()

	s := &Server{
		echo:         e,
		store:        st,
		pipeline:     pl,
		packs:        packs,
		metrics:      metrics,
		boundaryMode: boundaryMode,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers every route the HTTP Surface exposes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.createSessionHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/step", s.stepHandler)
	v1.POST("/sessions/:id/step/stream", s.streamHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
