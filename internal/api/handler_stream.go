package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/loomstep/engine/internal/pipeline"
)

// sseEventWriter adapts an echo response into a pipeline.EventWriter,
// writing one "event: ...\ndata: ...\n\n" frame per call and flushing
// immediately so the client observes each phase as it happens.
type sseEventWriter struct {
	c *echo.Context
}

func (w sseEventWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	w.c.Response().Flush()
	return nil
}

// streamHandler handles POST /api/v1/sessions/:id/step/stream, per the SSE
// event sequence spec.md §4.6 defines.
func (s *Server) streamHandler(c *echo.Context) error {
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

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	abort := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	_ = s.pipeline.ExecuteStepStream(
		ctx,
		c.Param("id"),
		req,
		c.Request().Header.Get("X-Idempotency-Key"),
		sseEventWriter{c: c},
		abort,
	)
	return nil
}
