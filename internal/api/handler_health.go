package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/loomstep/engine/internal/version"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string      `json:"status"`
	Version      string      `json:"version"`
	Database     interface{} `json:"database"`
	StoryPacks   int         `json:"story_packs_loaded"`
	BoundaryMode string      `json:"llm_boundary_mode"`
}

// healthHandler handles GET /health: database reachability, how many story
// packs the cache currently holds, and which LLM Boundary mode (real/fake)
// this process is running in.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := s.store.Health(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:       "unhealthy",
			Version:      version.Full(),
			Database:     dbHealth,
			StoryPacks:   s.packs.Len(),
			BoundaryMode: s.boundaryMode,
		})
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:       "healthy",
		Version:      version.Full(),
		Database:     dbHealth,
		StoryPacks:   s.packs.Len(),
		BoundaryMode: s.boundaryMode,
	})
}
