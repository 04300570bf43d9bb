package selection

import (
	"strings"

	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/storypack"
)

// GateResult is the per-choice availability the pipeline echoes back in
// StepResponse.choices, per spec.md §4.1 step 12.
type GateResult struct {
	Available    bool
	LockedReason string
}

// EvaluateGates checks every gate rule on a choice against the current
// NPC state and returns whether the choice is visible/selectable.
func EvaluateGates(choice storypack.Choice, npcState map[string]kernel.NpcEntry) GateResult {
	for _, g := range choice.Gates {
		entry, ok := npcState[g.NpcID]
		if !ok {
			return GateResult{Available: false, LockedReason: "npc " + g.NpcID + " has no relationship yet"}
		}

		var tier string
		switch strings.ToLower(g.Axis) {
		case "trust":
			tier = entry.TrustTier
		case "relation":
			tier = entry.RelationTier
		default:
			tier = entry.AffectionTier
		}

		if !kernel.TierAtLeast(tier, g.MinTier) {
			return GateResult{
				Available:    false,
				LockedReason: "requires " + g.NpcID + " " + g.Axis + " tier >= " + g.MinTier,
			}
		}
	}
	return GateResult{Available: true}
}

// VisibleChoices returns the ids of choices whose gates currently pass.
func VisibleChoices(node storypack.Node, npcState map[string]kernel.NpcEntry) []string {
	var ids []string
	for _, c := range node.Choices {
		if EvaluateGates(c, npcState).Available {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
