package pipeline

import (
	"errors"

	"github.com/loomstep/engine/internal/idempotency"
)

// Domain error codes, per spec.md §7. The HTTP layer is the only place
// that maps these to status codes; everything upstream of it deals only
// in these stable identifiers.
const (
	CodeBadRequest                 = "BAD_REQUEST"
	CodeMissingIdempotencyKey      = "MISSING_IDEMPOTENCY_KEY"
	CodeInvalidChoice              = "INVALID_CHOICE"
	CodeChoiceLocked               = "CHOICE_LOCKED"
	CodeForbidden                  = "FORBIDDEN"
	CodeUnauthorized               = "UNAUTHORIZED"
	CodeNotFound                   = "NOT_FOUND"
	CodeRequestInProgress          = "REQUEST_IN_PROGRESS"
	CodeIdempotencyPayloadMismatch = "IDEMPOTENCY_PAYLOAD_MISMATCH"
	CodeSessionStepConflict        = "SESSION_STEP_CONFLICT"
	CodeRuntimeConflict            = "RUNTIME_CONFLICT"
	CodeLLMUnavailable             = "LLM_UNAVAILABLE"
	CodeStreamAborted              = "STREAM_ABORTED"
	CodeStepFailed                 = "STEP_FAILED"
)

// Error is the pipeline's domain error kind: a stable code plus a
// human-readable message. It never carries an HTTP status itself.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// errorCode extracts the domain code from err, defaulting to STEP_FAILED
// for anything the pipeline did not classify, per spec.md §7's
// "fallthrough" error kind.
func errorCode(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeStepFailed
}

// mapIdempotencyError translates the idempotency package's typed errors
// into pipeline Errors, per spec.md §4.1 step 1.
func mapIdempotencyError(err error) error {
	var mismatch *idempotency.ErrPayloadMismatch
	if errors.As(err, &mismatch) {
		return &Error{Code: CodeIdempotencyPayloadMismatch, Message: mismatch.Error()}
	}
	var inProgress *idempotency.ErrRequestInProgress
	if errors.As(err, &inProgress) {
		return &Error{Code: CodeRequestInProgress, Message: inProgress.Error()}
	}
	return &Error{Code: CodeStepFailed, Message: err.Error()}
}

func validateRequest(req StepRequest, idempotencyKey string) error {
	if idempotencyKey == "" {
		return &Error{Code: CodeMissingIdempotencyKey, Message: "X-Idempotency-Key is required"}
	}
	hasChoice := req.ChoiceID != ""
	hasInput := req.PlayerInput != ""
	if hasChoice == hasInput {
		return &Error{Code: CodeBadRequest, Message: "exactly one of choice_id or player_input is required"}
	}
	return nil
}
