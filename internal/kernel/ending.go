package kernel

import "sort"

// EndingTrigger is the match criteria a configured ending fires on: a node
// id, a minimum day, minimum/maximum stat thresholds, and a subset of
// quest ids that must all be marked completed. A zero-value field on the
// trigger is treated as "not constrained" on that axis.
type EndingTrigger struct {
	NodeID          string         `json:"node_id,omitempty"`
	MinDay          int            `json:"min_day,omitempty"`
	StatAtLeast     map[string]int `json:"stat_at_least,omitempty"`
	StatAtMost      map[string]int `json:"stat_at_most,omitempty"`
	CompletedQuests []string       `json:"completed_quests,omitempty"`
}

// EndingDef is one entry of a pack's ending_defs, ordered for resolution by
// (Priority, ID) ascending per spec.md §4.4.
type EndingDef struct {
	ID       string        `json:"id"`
	Priority int           `json:"priority"`
	Outcome  string        `json:"outcome"`
	Camp     string        `json:"camp"`
	Trigger  EndingTrigger `json:"trigger"`
}

// RunLimits bounds how long a run may continue before the __timeout__
// ending is synthesized, per spec.md §4.4(c).
type RunLimits struct {
	MaxDays             int
	MaxSteps            int
	DefaultTimeoutOutcome string
}

const timeoutEndingID = "__timeout__"

// statGetter reads a scalar stat by name off State (player stats only;
// "affection" here means the player's own affection stat, not an NPC's).
func statGetter(s State) map[string]int {
	return map[string]int{
		"energy":    s.Energy,
		"money":     s.Money,
		"knowledge": s.Knowledge,
		"affection": s.Affection,
		"day":       s.Day,
	}
}

func questCompleted(s State, questID string) bool {
	if s.QuestState == nil {
		return false
	}
	v, ok := s.QuestState[questID]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "completed" || t == "done"
	case map[string]any:
		if status, ok := t["status"].(string); ok {
			return status == "completed" || status == "done"
		}
	}
	return false
}

func triggerMatches(s State, nodeID string, tr EndingTrigger) bool {
	if tr.NodeID != "" && tr.NodeID != nodeID {
		return false
	}
	if tr.MinDay != 0 && s.Day < tr.MinDay {
		return false
	}
	stats := statGetter(s)
	for stat, min := range tr.StatAtLeast {
		if stats[stat] < min {
			return false
		}
	}
	for stat, max := range tr.StatAtMost {
		if stats[stat] > max {
			return false
		}
	}
	for _, q := range tr.CompletedQuests {
		if !questCompleted(s, q) {
			return false
		}
	}
	return true
}

// ResolveRunEnding implements resolve_run_ending from spec.md §4.4:
//
//	(a) if run_state.ending_id is already set, return it unchanged (idempotent);
//	(b) else scan endings in ascending (priority, id) order, the first whose
//	    trigger matches the current node/state wins;
//	(c) else if day > max_days or step_index >= max_steps, synthesize a
//	    __timeout__ ending with the configured default_timeout_outcome.
//
// Returns the matched/synthesized EndingDef and ok=true if the run ends
// here, or ok=false if the run continues.
func ResolveRunEnding(s State, nodeID string, endings []EndingDef, limits RunLimits) (EndingDef, bool) {
	if s.RunState.EndingID != "" {
		return EndingDef{
			ID:      s.RunState.EndingID,
			Outcome: s.RunState.EndingOutcome,
			Camp:    s.RunState.EndingCamp,
		}, true
	}

	sorted := make([]EndingDef, len(endings))
	copy(sorted, endings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, def := range sorted {
		if triggerMatches(s, nodeID, def.Trigger) {
			return def, true
		}
	}

	if limits.MaxDays > 0 && s.Day > limits.MaxDays {
		return timeoutEnding(limits), true
	}
	if limits.MaxSteps > 0 && s.RunState.StepIndex >= limits.MaxSteps {
		return timeoutEnding(limits), true
	}

	return EndingDef{}, false
}

func timeoutEnding(limits RunLimits) EndingDef {
	outcome := limits.DefaultTimeoutOutcome
	if outcome == "" {
		outcome = "neutral"
	}
	return EndingDef{ID: timeoutEndingID, Outcome: outcome, Camp: "world"}
}

// ApplyEnding stamps an EndingDef onto a state's run_state, marking the run
// ended. Idempotent: calling it twice with the same def is a no-op beyond
// the first application since ResolveRunEnding short-circuits once
// ending_id is set.
func ApplyEnding(s State, def EndingDef, report map[string]any) State {
	out := s.Clone()
	out.RunState.RunEnded = true
	out.RunState.EndingID = def.ID
	out.RunState.EndingOutcome = def.Outcome
	out.RunState.EndingCamp = def.Camp
	if report != nil {
		out.RunState.EndingReport = report
	}
	return out
}

// ForcedFallbackEnding checks spec.md §4.1 step 7's forced-fallback rule:
// after a fallback, if consecutive_fallback_count >= forced_fallback_threshold
// and a forced_fallback_ending_id is configured, that ending triggers
// regardless of the normal ending_defs scan. Threshold comparison is
// inclusive (>=), per spec.md's Open Question resolution in §9.
func ForcedFallbackEnding(fallbackUsed bool, consecutiveCount, threshold int, forcedEndingID string, endingByID map[string]EndingDef) (EndingDef, bool) {
	if !fallbackUsed || forcedEndingID == "" || threshold <= 0 {
		return EndingDef{}, false
	}
	if consecutiveCount < threshold {
		return EndingDef{}, false
	}
	if def, ok := endingByID[forcedEndingID]; ok {
		return def, true
	}
	return EndingDef{ID: forcedEndingID, Outcome: "fail", Camp: "world"}, true
}
