package pipeline

import (
	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/selection"
	"github.com/loomstep/engine/internal/storypack"
)

// buildStepResponse assembles the public StepResponse from the pipeline's
// internal results, per spec.md §4.1 step 12 / §6.
func buildStepResponse(
	status string,
	decision selection.Decision,
	selectionMode string,
	tier int,
	state kernel.State,
	applied []kernel.AppliedEffect,
	narr narrationOutcome,
	ended bool,
	ending kernel.EndingDef,
	endingReport map[string]any,
	pack *storypack.StoryPack,
) *StepResponse {
	nextNode := pack.NodeByID[decision.NextNodeID]
	choices := make([]ChoiceView, 0, len(nextNode.Choices))
	for _, c := range nextNode.Choices {
		gate := selection.EvaluateGates(c, state.NpcState)
		choices = append(choices, ChoiceView{
			ID:           c.ID,
			Text:         c.Text,
			Available:    gate.Available,
			LockedReason: gate.LockedReason,
		})
	}

	tierCopy := tier

	resp := &StepResponse{
		SessionStatus:      status,
		StoryNodeID:        decision.NextNodeID,
		AttemptedChoiceID:  decision.AttemptedChoiceID,
		ExecutedChoiceID:   decision.ExecutedChoiceID,
		FallbackUsed:       decision.FallbackUsed,
		SelectionMode:      selectionMode,
		SelectionSource:    decision.SelectionSource,
		MappingConfidence:  decision.MappingConfidence,
		IntensityTier:      &tierCopy,
		NarrativeText:      narr.text,
		Choices:            choices,
		RangeEffectsApplied: applied,
		StateExcerpt: StateExcerpt{
			Energy:    state.Energy,
			Money:     state.Money,
			Knowledge: state.Knowledge,
			Affection: state.Affection,
			Day:       state.Day,
			Slot:      state.Slot,
			RunState:  state.RunState,
		},
		RunEnded:    ended,
		CurrentNode: decision.NextNodeID,
	}

	if decision.FallbackUsed {
		resp.FallbackReason = string(decision.FallbackReasonCode)
		resp.MainlineNudge = true
		resp.NudgeTier = state.RunState.NudgeTier
	}

	if ended {
		resp.EndingID = ending.ID
		resp.EndingOutcome = ending.Outcome
		resp.EndingCamp = ending.Camp
		resp.EndingReport = endingReport
	}

	return resp
}
