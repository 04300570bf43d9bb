package storypack

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/loomstep/engine/internal/kernel"
)

// Source loads the raw Pack for a (story_id, version); the HTTP surface
// and story-pack authoring/publishing pipeline are out of scope (spec.md
// §1), so this is the seam a real deployment wires to its pack storage.
type Source interface {
	LoadPack(storyID string, version int) (*Pack, error)
}

// Resolve loads a Pack via src and computes its effective, indexed form:
// fallback_overrides and ending_overrides are merged over the base
// global_fallbacks/ending_defs (override wins on id collision, additions
// appended), per spec.md §2's "effective_fallbacks"/"effective_endings".
func Resolve(src Source, storyID string, version int) (*StoryPack, error) {
	pack, err := src.LoadPack(storyID, version)
	if err != nil {
		return nil, fmt.Errorf("storypack: load %s@%d: %w", storyID, version, err)
	}

	effectiveFallbacks, err := mergeFallbacks(pack.GlobalFallbacks, pack.FallbackOverrides)
	if err != nil {
		return nil, fmt.Errorf("storypack: merge fallbacks: %w", err)
	}
	effectiveEndings, err := mergeEndings(pack.EndingDefs, pack.EndingOverrides)
	if err != nil {
		return nil, fmt.Errorf("storypack: merge endings: %w", err)
	}

	sp := &StoryPack{
		Pack:               *pack,
		EffectiveFallbacks: effectiveFallbacks,
		EffectiveEndings:   effectiveEndings,
		NodeByID:           make(map[string]Node, len(pack.Nodes)),
		FallbackByID:       make(map[string]Fallback, len(effectiveFallbacks)),
		EndingByID:         make(map[string]kernel.EndingDef, len(effectiveEndings)),
		NpcDefByID:         make(map[string]NpcDef, len(pack.NpcDefs)),
		ReactionPolicyByID: make(map[string]ReactionPolicy, len(pack.NpcReactionPolicies)),
	}

	for _, n := range pack.Nodes {
		sp.NodeByID[n.ID] = n
	}
	for _, f := range effectiveFallbacks {
		sp.FallbackByID[f.ID] = f
	}
	for _, e := range effectiveEndings {
		sp.EndingByID[e.ID] = e
	}
	for _, npc := range pack.NpcDefs {
		npc.Thresholds = kernel.NpcThresholds{
			Affection: kernel.Thresholds(npc.AffectionThresholds),
			Trust:     kernel.Thresholds(npc.TrustThresholds),
		}
		sp.NpcDefByID[npc.ID] = npc
	}
	for _, rp := range pack.NpcReactionPolicies {
		sp.ReactionPolicyByID[rp.NpcID] = rp
	}

	sp.RunLimits = kernel.RunLimits{
		MaxDays:               pack.MaxDays,
		MaxSteps:              pack.MaxSteps,
		DefaultTimeoutOutcome: pack.DefaultTimeoutOutcome,
	}

	if err := validatePack(sp); err != nil {
		return nil, fmt.Errorf("storypack: invalid pack %s@%d: %w", storyID, version, err)
	}

	return sp, nil
}

// mergeFallbacks merges override fallbacks over base ones, keyed by id:
// an override with an id matching a base entry replaces it in place;
// a new id is appended. mergo handles the per-field merge of an override
// that only sets a subset of fields (e.g. a new target_node_id without
// repeating range_effects).
func mergeFallbacks(base, overrides []Fallback) ([]Fallback, error) {
	byID := make(map[string]int, len(base))
	result := make([]Fallback, len(base))
	copy(result, base)
	for i, f := range result {
		byID[f.ID] = i
	}

	for _, ov := range overrides {
		if idx, ok := byID[ov.ID]; ok {
			merged := result[idx]
			if err := mergo.Merge(&merged, ov, mergo.WithOverride); err != nil {
				return nil, err
			}
			result[idx] = merged
			continue
		}
		byID[ov.ID] = len(result)
		result = append(result, ov)
	}
	return result, nil
}

// mergeEndings merges override endings over base ones the same way
// mergeFallbacks does for fallbacks.
func mergeEndings(base, overrides []kernel.EndingDef) ([]kernel.EndingDef, error) {
	byID := make(map[string]int, len(base))
	result := make([]kernel.EndingDef, len(base))
	copy(result, base)
	for i, e := range result {
		byID[e.ID] = i
	}

	for _, ov := range overrides {
		if idx, ok := byID[ov.ID]; ok {
			merged := result[idx]
			if err := mergo.Merge(&merged, ov, mergo.WithOverride); err != nil {
				return nil, err
			}
			result[idx] = merged
			continue
		}
		byID[ov.ID] = len(result)
		result = append(result, ov)
	}
	return result, nil
}

func validatePack(sp *StoryPack) error {
	if sp.StoryID == "" {
		return fmt.Errorf("story_id is required")
	}
	if sp.StartNodeID == "" {
		return fmt.Errorf("start_node_id is required")
	}
	if _, ok := sp.NodeByID[sp.StartNodeID]; !ok {
		return fmt.Errorf("start_node_id %q does not name a declared node", sp.StartNodeID)
	}
	for _, n := range sp.Nodes {
		for _, c := range n.Choices {
			if c.NextNodeID == "" && c.EndingID == "" {
				return fmt.Errorf("node %q choice %q declares neither next_node_id nor ending_id", n.ID, c.ID)
			}
			if c.NextNodeID != "" {
				if _, ok := sp.NodeByID[c.NextNodeID]; !ok {
					return fmt.Errorf("node %q choice %q targets unknown node %q", n.ID, c.ID, c.NextNodeID)
				}
			}
		}
	}
	return nil
}
