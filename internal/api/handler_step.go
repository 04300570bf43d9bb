package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/loomstep/engine/internal/pipeline"
)

// stepHandler handles POST /api/v1/sessions/:id/step.
func (s *Server) stepHandler(c *echo.Context) error {
	var body StepHTTPRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "BAD_REQUEST", Message: "malformed request body"},
		})
	}

	req := pipeline.StepRequest{
		ChoiceID:    body.ChoiceID,
		PlayerInput: body.PlayerInput,
		ActorUserID: extractActor(c),
	}

	resp, err := s.pipeline.ExecuteStep(
		c.Request().Context(),
		c.Param("id"),
		req,
		c.Request().Header.Get("X-Idempotency-Key"),
		pipeline.Hooks{},
	)
	if err != nil {
		return writeDomainError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}
