package selection

import (
	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/storypack"
)

// ResolveExplicit implements resolve_explicit from spec.md §4.3: an O(1)
// lookup of choiceID on node, with gate rules enforced before the choice
// is accepted.
func ResolveExplicit(node storypack.Node, choiceID string, npcState map[string]kernel.NpcEntry) (Decision, error) {
	for _, c := range node.Choices {
		if c.ID != choiceID {
			continue
		}

		gate := EvaluateGates(c, npcState)
		if !gate.Available {
			return Decision{}, &ChoiceLockedError{ChoiceID: choiceID, LockedReason: gate.LockedReason}
		}

		return Decision{
			AttemptedChoiceID:     choiceID,
			ExecutedChoiceID:      choiceID,
			SelectionSource:       SourceExplicit,
			SelectionDecisionCode: DecisionSelectChoice,
			RawIntensityTier:      0,
			NextNodeID:            c.NextNodeID,
			RangeEffects:          c.RangeEffects,
			ReactiveNpcIDs:        c.ReactiveNpcIDs,
			TransitionEndingID:    c.EndingID,
			CompletesQuests:       c.CompletesQuests,
		}, nil
	}

	return Decision{}, &InvalidChoiceError{ChoiceID: choiceID}
}
