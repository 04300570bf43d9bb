package kernel

// QuestTrigger is the match criteria that marks a quest completed, grounded
// on original_source's quest_engine.py trigger shape (node_id_is,
// next_node_id_is, executed_choice_id_is, fallback_used_is,
// state_at_least): every set field must match the step that just ran. A
// zero-value field is "not constrained" on that axis, same convention as
// EndingTrigger.
type QuestTrigger struct {
	NodeID           string         `json:"node_id,omitempty"`
	NextNodeID       string         `json:"next_node_id,omitempty"`
	ExecutedChoiceID string         `json:"executed_choice_id,omitempty"`
	FallbackUsed     *bool          `json:"fallback_used,omitempty"`
	StateAtLeast     map[string]int `json:"state_at_least,omitempty"`
}

// QuestDef is one pack-declared quest: a single completion trigger. This is
// a deliberately narrowed port of quest_engine.py's stage/milestone graph
// (see DESIGN.md) down to the one piece resolve_run_ending actually
// consumes: whether a quest id is completed.
type QuestDef struct {
	ID      string       `json:"id"`
	Title   string       `json:"title,omitempty"`
	Trigger QuestTrigger `json:"trigger"`
}

func questTriggerMatches(tr QuestTrigger, nodeID, nextNodeID, executedChoiceID string, fallbackUsed bool, s State) bool {
	if tr.NodeID != "" && tr.NodeID != nodeID {
		return false
	}
	if tr.NextNodeID != "" && tr.NextNodeID != nextNodeID {
		return false
	}
	if tr.ExecutedChoiceID != "" && tr.ExecutedChoiceID != executedChoiceID {
		return false
	}
	if tr.FallbackUsed != nil && *tr.FallbackUsed != fallbackUsed {
		return false
	}
	stats := statGetter(s)
	for stat, min := range tr.StateAtLeast {
		if stats[stat] < min {
			return false
		}
	}
	return true
}

// ApplyQuestProgress evaluates every quest def's trigger against the step
// that just executed and marks newly-matched quests completed in
// s.QuestState, in the map shape questCompleted already reads
// ({"status": "completed"}). Already-completed quests are left untouched so
// a trigger that keeps matching on later steps (e.g. a node_id_is the
// player revisits) does not re-fire anything observable.
func ApplyQuestProgress(s State, defs []QuestDef, nodeID, nextNodeID, executedChoiceID string, fallbackUsed bool) State {
	if len(defs) == 0 {
		return s
	}
	out := s.Clone()
	for _, def := range defs {
		if def.ID == "" || questCompleted(out, def.ID) {
			continue
		}
		if questTriggerMatches(def.Trigger, nodeID, nextNodeID, executedChoiceID, fallbackUsed, out) {
			if out.QuestState == nil {
				out.QuestState = make(map[string]any, len(defs))
			}
			out.QuestState[def.ID] = map[string]any{"status": "completed"}
		}
	}
	return out
}
