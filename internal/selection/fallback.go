package selection

import (
	"strconv"

	"github.com/loomstep/engine/internal/storypack"
	"github.com/loomstep/engine/internal/timeid"
)

// SelectFallback implements spec.md §4.3's fallback target selection: pick
// by reason_code match first; else the node-scoped node_fallback_id; else
// a deterministic choice over the effective fallback list.
func SelectFallback(reason string, node storypack.Node, effectiveFallbacks []storypack.Fallback, input string, stepIndex int) storypack.Fallback {
	for _, f := range effectiveFallbacks {
		if f.ReasonCode == reason {
			return f
		}
	}

	if node.NodeFallbackID != "" {
		for _, f := range effectiveFallbacks {
			if f.ID == node.NodeFallbackID {
				return f
			}
		}
	}

	if len(effectiveFallbacks) == 0 {
		return storypack.Fallback{}
	}
	idx := timeid.DeterministicIndex(len(effectiveFallbacks), node.ID, input, strconv.Itoa(stepIndex), reason)
	return effectiveFallbacks[idx]
}
