package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/llmboundary"
	"github.com/loomstep/engine/internal/selection"
	"github.com/loomstep/engine/internal/storypack"
)

// Narration modes, per spec.md §4.1 step 8.
const (
	narrationModeEndingBundle = "ending_bundle"
	narrationModeFallback     = "fallback"
	narrationModeNormal       = "normal"
)

const (
	endingBundleSystemPrompt = "Narrate the closing scene of this story run and produce a structured ending report. " +
		"Respond with a single JSON object matching the " + llmboundary.SchemaEndingBundle + " schema."
	fallbackNarrationSystemPrompt = "The player's input could not be matched to an available action. Narrate a brief, " +
		"in-world redirect back toward the scene's available choices, in second person."
	normalNarrationSystemPrompt = "Narrate the outcome of the player's action in the current scene, in second person."
)

// narrationOutcome is narrate's internal result, folded into the
// StepResponse and ActionLog by the caller.
type narrationOutcome struct {
	mode         string
	text         string
	endingReport map[string]any
}

// narrate implements spec.md §4.1 step 8: ending-bundle mode for a run
// that just ended on a bundle-profiled ending, fallback-narration mode
// after a fallback step, or normal narration otherwise.
func (p *Pipeline) narrate(
	ctx context.Context,
	hooks Hooks,
	pack *storypack.StoryPack,
	node storypack.Node,
	decision selection.Decision,
	state kernel.State,
	ended bool,
	ending kernel.EndingDef,
) (narrationOutcome, error) {
	mode := narrationModeNormal
	if decision.FallbackUsed {
		mode = narrationModeFallback
	}
	if ended {
		if _, ok := pack.EndingPromptProfiles[ending.ID]; ok {
			mode = narrationModeEndingBundle
		}
	}

	emitPhase(hooks, PhaseNarrationStart, map[string]any{"mode": mode})
	defer emitPhase(hooks, PhaseNarrationDone, map[string]any{"mode": mode})

	if mode == narrationModeEndingBundle {
		return p.narrateEndingBundle(ctx, node, state, ending)
	}
	return p.narrateStream(ctx, hooks, mode, node, decision, state)
}

func (p *Pipeline) narrateEndingBundle(ctx context.Context, node storypack.Node, state kernel.State, ending kernel.EndingDef) (narrationOutcome, error) {
	endCtx, cancel := context.WithTimeout(ctx, p.EndingTimeout)
	defer cancel()

	payload := llmboundary.EndingBundlePromptContext{
		NodeID:    node.ID,
		EndingID:  ending.ID,
		Outcome:   ending.Outcome,
		Camp:      ending.Camp,
		StepIndex: state.RunState.StepIndex,
		Stats: map[string]int{
			"energy":    state.Energy,
			"money":     state.Money,
			"knowledge": state.Knowledge,
			"affection": state.Affection,
		},
	}
	user, merr := json.Marshal(payload)
	if merr != nil {
		return narrationOutcome{}, &Error{Code: CodeStepFailed, Message: "marshal ending bundle prompt: " + merr.Error()}
	}

	result, err := p.Boundary.CallStructured(endCtx, llmboundary.SchemaEndingBundle, endingBundleSystemPrompt, string(user), 3)
	if err != nil {
		return narrationOutcome{}, &Error{Code: CodeLLMUnavailable, Message: err.Error()}
	}

	text, _ := result.Object["narrative_text"].(string)
	report, _ := result.Object["ending_report"].(map[string]any)
	return narrationOutcome{mode: narrationModeEndingBundle, text: text, endingReport: report}, nil
}

func (p *Pipeline) narrateStream(ctx context.Context, hooks Hooks, mode string, node storypack.Node, decision selection.Decision, state kernel.State) (narrationOutcome, error) {
	narrCtx, cancel := context.WithTimeout(ctx, p.NarrationTimeout)
	defer cancel()

	system := normalNarrationSystemPrompt
	if mode == narrationModeFallback {
		system = fallbackNarrationSystemPrompt
	}
	user := buildNarrationUserPrompt(node, decision, state)

	onDelta := func(text string) {
		if hooks.OnDelta != nil {
			hooks.OnDelta(text)
		}
	}
	abort := func() bool { return checkAbort(hooks) }

	result, err := p.Boundary.Narrative(narrCtx, system, user, onDelta, abort)
	if err != nil {
		var aborted llmboundary.ErrAborted
		if errors.As(err, &aborted) {
			return narrationOutcome{}, &Error{Code: CodeStreamAborted, Message: "narration aborted"}
		}
		return narrationOutcome{}, &Error{Code: CodeLLMUnavailable, Message: err.Error()}
	}

	return narrationOutcome{mode: mode, text: result.Text}, nil
}

func buildNarrationUserPrompt(node storypack.Node, decision selection.Decision, state kernel.State) string {
	b, _ := json.Marshal(map[string]any{
		"scene_brief":        node.SceneBrief,
		"executed_choice_id": decision.ExecutedChoiceID,
		"fallback_used":      decision.FallbackUsed,
		"fallback_reason":    decision.FallbackReasonCode,
		"day":                state.Day,
		"slot":               state.Slot,
	})
	return string(b)
}
