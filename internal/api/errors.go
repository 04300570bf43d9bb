package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/loomstep/engine/internal/pipeline"
)

// statusForCode maps a pipeline.Error code to the HTTP status spec.md §6's
// endpoint table declares for it.
func statusForCode(code string) int {
	switch code {
	case pipeline.CodeBadRequest, pipeline.CodeMissingIdempotencyKey:
		return http.StatusBadRequest
	case pipeline.CodeForbidden:
		return http.StatusForbidden
	case pipeline.CodeUnauthorized:
		return http.StatusUnauthorized
	case pipeline.CodeNotFound:
		return http.StatusNotFound
	case pipeline.CodeRequestInProgress, pipeline.CodeIdempotencyPayloadMismatch,
		pipeline.CodeSessionStepConflict, pipeline.CodeRuntimeConflict:
		return http.StatusConflict
	case pipeline.CodeInvalidChoice, pipeline.CodeChoiceLocked:
		return http.StatusUnprocessableEntity
	case pipeline.CodeLLMUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders a pipeline.Error (or an unclassified error) as
// the {"detail": {code, message}} envelope spec.md §6 requires.
func writeDomainError(c *echo.Context, err error) error {
	var de *pipeline.Error
	if errors.As(err, &de) {
		return c.JSON(statusForCode(de.Code), &ErrorEnvelope{
			Detail: ErrorDetail{Code: de.Code, Message: de.Message},
		})
	}

	slog.Error("unclassified pipeline error", "error", err)
	return c.JSON(http.StatusInternalServerError, &ErrorEnvelope{
		Detail: ErrorDetail{Code: pipeline.CodeStepFailed, Message: "internal server error"},
	})
}
