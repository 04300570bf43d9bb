package pipeline

import (
	"github.com/loomstep/engine/internal/kernel"
)

// StepRequest is the decoded body of a step request, plus whatever actor
// identity the HTTP layer derived from the request's auth headers.
type StepRequest struct {
	ChoiceID    string
	PlayerInput string
	ActorUserID string
}

// PhaseHook is called at each named phase transition spec.md §4.1
// describes (selection_start, selection_done, narration_start,
// narration_done, finalizing); payload carries phase-specific detail for
// the SSE "phase" event.
type PhaseHook func(name string, payload map[string]any)

// DeltaHook is called once per narration fragment as it streams in.
type DeltaHook func(text string)

// AbortCheck reports whether the calling client has disconnected; polled
// at phase transitions and between narration deltas per spec.md §5.
type AbortCheck func() bool

// ReplayHook is called instead of any of the above when Prepare resolves
// to a stored, already-succeeded response — no phase ever runs.
type ReplayHook func()

// Hooks bundles every callback ExecuteStep may invoke. Every field is
// optional; a nil hook is simply not called.
type Hooks struct {
	OnPhase    PhaseHook
	OnDelta    DeltaHook
	AbortCheck AbortCheck
	OnReplay   ReplayHook
}

func emitPhase(hooks Hooks, name string, payload map[string]any) {
	if hooks.OnPhase != nil {
		hooks.OnPhase(name, payload)
	}
}

func checkAbort(hooks Hooks) bool {
	return hooks.AbortCheck != nil && hooks.AbortCheck()
}

// ChoiceView is one entry of StepResponse.choices: the next node's choices
// annotated with current gate availability, per spec.md §4.1 step 12.
type ChoiceView struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Available    bool   `json:"available"`
	LockedReason string `json:"locked_reason,omitempty"`
}

// StateExcerpt is the scalar-stats-plus-run_state slice of session state
// StepResponse exposes to the client, per spec.md §6.
type StateExcerpt struct {
	Energy    int             `json:"energy"`
	Money     int             `json:"money"`
	Knowledge int             `json:"knowledge"`
	Affection int             `json:"affection"`
	Day       int             `json:"day"`
	Slot      kernel.Slot     `json:"slot"`
	RunState  kernel.RunState `json:"run_state"`
}

// StepResponse is the full response shape of both POST /sessions/{id}/step
// and the "final" SSE event of the streaming variant, per spec.md §6.
type StepResponse struct {
	SessionStatus       string                  `json:"session_status"`
	StoryNodeID         string                  `json:"story_node_id"`
	AttemptedChoiceID   string                  `json:"attempted_choice_id,omitempty"`
	ExecutedChoiceID    string                  `json:"executed_choice_id"`
	FallbackUsed        bool                    `json:"fallback_used"`
	FallbackReason      string                  `json:"fallback_reason,omitempty"`
	SelectionMode       string                  `json:"selection_mode"`
	SelectionSource     string                  `json:"selection_source"`
	MappingConfidence   *float64                `json:"mapping_confidence,omitempty"`
	IntensityTier       *int                    `json:"intensity_tier,omitempty"`
	MainlineNudge       bool                    `json:"mainline_nudge,omitempty"`
	NudgeTier           string                  `json:"nudge_tier,omitempty"`
	NarrativeText       string                  `json:"narrative_text"`
	Choices             []ChoiceView            `json:"choices"`
	RangeEffectsApplied []kernel.AppliedEffect  `json:"range_effects_applied"`
	StateExcerpt        StateExcerpt            `json:"state_excerpt"`
	RunEnded            bool                    `json:"run_ended"`
	EndingID            string                  `json:"ending_id,omitempty"`
	EndingOutcome       string                  `json:"ending_outcome,omitempty"`
	EndingCamp          string                  `json:"ending_camp,omitempty"`
	EndingReport        map[string]any          `json:"ending_report,omitempty"`
	CurrentNode         string                  `json:"current_node"`
}

// stepRequestPayload is the subset of StepRequest that feeds the
// idempotency request-hash fingerprint, per spec.md §4.1 step 1 — actor
// identity is deliberately excluded, since the same step replayed by the
// session owner through a different auth header must still match.
type stepRequestPayload struct {
	ChoiceID    string `json:"choice_id,omitempty"`
	PlayerInput string `json:"player_input,omitempty"`
}

// actionLogPayload is the JSON body stored in one ActionLog row, per
// spec.md §3's field list: request payload, selection result, state
// before/delta/after, and narration trace.
type actionLogPayload struct {
	Request                stepRequestPayload     `json:"request"`
	AttemptedChoiceID      string                 `json:"attempted_choice_id,omitempty"`
	ExecutedChoiceID       string                 `json:"executed_choice_id"`
	SelectionSource        string                 `json:"selection_source"`
	SelectionDecisionCode  string                 `json:"selection_decision_code"`
	RawIntensityTier       int                    `json:"raw_intensity_tier"`
	EffectiveIntensityTier int                    `json:"effective_intensity_tier"`
	FallbackUsed           bool                   `json:"fallback_used"`
	FallbackReasonCode     string                 `json:"fallback_reason_code,omitempty"`
	SelectionRetryCount    int                    `json:"selection_retry_count"`
	SelectionRetryErrors   []string               `json:"selection_retry_errors,omitempty"`
	MappingConfidence      *float64               `json:"mapping_confidence,omitempty"`
	StateBefore            kernel.State           `json:"state_before"`
	StateDelta             map[string]int         `json:"state_delta"`
	StateAfter             kernel.State           `json:"state_after"`
	RangeEffectsApplied    []kernel.AppliedEffect `json:"range_effects_applied"`
	NarrativeMode          string                 `json:"narrative_mode"`
	RunEnded               bool                   `json:"run_ended"`
	EndingID               string                 `json:"ending_id,omitempty"`
}

func mergeDeltas(a, b map[string]int) map[string]int {
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}
