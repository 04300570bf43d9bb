package pipeline

import (
	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/storypack"
)

// collectReactionEffects implements the NPC-reaction half of spec.md §4.1
// step 6: for every NPC a choice/fallback names as reactive, look up that
// NPC's reaction policy and fold in every rule whose source matches this
// step's origin ("choice" or "fallback", or a rule declared for "any") and
// whose min_relation_tier the NPC's current relation tier already meets.
// These effects are always applied at tier 0, independent of the step's
// own effective intensity tier.
func collectReactionEffects(pack *storypack.StoryPack, npcIDs []string, state kernel.State, source string) []kernel.RangeEffect {
	var effects []kernel.RangeEffect
	for _, id := range npcIDs {
		policy, ok := pack.ReactionPolicyByID[id]
		if !ok {
			continue
		}
		entry := state.NpcState[id]
		for _, rule := range policy.Rules {
			if rule.Source != "any" && rule.Source != source {
				continue
			}
			if !kernel.TierAtLeast(entry.RelationTier, rule.MinRelationTier) {
				continue
			}
			effects = append(effects, rule.RangeEffects...)
		}
	}
	return effects
}
