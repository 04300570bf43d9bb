package pipeline

import (
	"context"
	"errors"
)

// EventWriter receives one SSE-shaped event at a time; internal/api's
// streaming handler implements this over a flushed http.ResponseWriter.
// ExecuteStepStream never inspects the write error — a disconnected writer
// is caught on the next AbortCheck poll, not here.
type EventWriter interface {
	WriteEvent(event string, data any) error
}

// ExecuteStepStream drives ExecuteStep while emitting the SSE event
// sequence spec.md §4.6 describes for POST /sessions/{id}/step/stream:
//
//	success: meta -> phase* -> narrative_delta* -> phase(finalizing) -> final -> done
//	replay:  meta -> replay -> final -> done
//	error:   meta -> error -> done
func (p *Pipeline) ExecuteStepStream(ctx context.Context, sessionID string, req StepRequest, idempotencyKey string, w EventWriter, abort AbortCheck) error {
	_ = w.WriteEvent("meta", map[string]any{"session_id": sessionID})

	hooks := Hooks{
		OnPhase: func(name string, payload map[string]any) {
			_ = w.WriteEvent("phase", map[string]any{"name": name, "payload": payload})
		},
		OnDelta: func(text string) {
			_ = w.WriteEvent("narrative_delta", map[string]any{"text": text})
		},
		AbortCheck: abort,
		OnReplay: func() {
			_ = w.WriteEvent("replay", nil)
		},
	}

	resp, err := p.ExecuteStep(ctx, sessionID, req, idempotencyKey, hooks)
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			_ = w.WriteEvent("error", map[string]any{"code": de.Code, "message": de.Message})
		} else {
			_ = w.WriteEvent("error", map[string]any{"code": CodeStepFailed, "message": err.Error()})
		}
		_ = w.WriteEvent("done", nil)
		return err
	}

	_ = w.WriteEvent("final", resp)
	_ = w.WriteEvent("done", nil)
	return nil
}
