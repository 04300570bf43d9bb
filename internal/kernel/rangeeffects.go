package kernel

import "fmt"

// TargetType identifies what a RangeEffect mutates.
type TargetType string

const (
	TargetPlayer TargetType = "player"
	TargetNpc    TargetType = "npc"
)

// Metric enumerates the stat/axis a RangeEffect writes to.
type Metric string

const (
	MetricEnergy    Metric = "energy"
	MetricMoney     Metric = "money"
	MetricKnowledge Metric = "knowledge"
	MetricAffection Metric = "affection"
	MetricNpcTrust  Metric = "trust"
)

// RangeEffect is (target_type, metric, center, intensity, target_id?) from
// spec.md's GLOSSARY: the applied delta is center + tier*intensity.
type RangeEffect struct {
	TargetType TargetType `json:"target_type"`
	Metric     Metric     `json:"metric"`
	Center     int        `json:"center"`
	Intensity  int        `json:"intensity"`
	TargetID   string     `json:"target_id,omitempty"`
}

// AppliedEffect echoes an effect's inputs alongside the delta that was
// actually applied, for the ActionLog trace.
type AppliedEffect struct {
	RangeEffect
	Tier          int `json:"tier"`
	ResolvedDelta int `json:"resolved_delta"`
}

// ApplyRangeEffects applies effects to state at the given tier (already
// clamped by the caller to [-2,2]) and returns the new state, a per-metric
// delta map keyed "player:<metric>" or "npc:<id>:<metric>", and the list of
// applied effects. An empty effects slice is a no-op:
// apply_range_effects(s, [], tier) == (s, {}, []) per spec.md §8.
func ApplyRangeEffects(s State, effects []RangeEffect, tier int) (State, map[string]int, []AppliedEffect) {
	out := s.Clone()
	deltas := make(map[string]int)
	applied := make([]AppliedEffect, 0, len(effects))

	for _, eff := range effects {
		delta := eff.Center + tier*eff.Intensity

		switch eff.TargetType {
		case TargetPlayer:
			switch eff.Metric {
			case MetricEnergy:
				out.Energy += delta
				deltas["player:energy"] += delta
			case MetricMoney:
				out.Money += delta
				deltas["player:money"] += delta
			case MetricKnowledge:
				out.Knowledge += delta
				deltas["player:knowledge"] += delta
			case MetricAffection:
				out.Affection += delta
				deltas["player:affection"] += delta
			default:
				// Unknown player metric: ignored but still echoed in the trace
				// so pack authors can see what was requested.
			}
		case TargetNpc:
			if eff.TargetID == "" {
				// No NPC to apply to: state is untouched, but the effect is
				// still echoed in the trace.
				applied = append(applied, AppliedEffect{RangeEffect: eff, Tier: tier, ResolvedDelta: delta})
				continue
			}
			if out.NpcState == nil {
				out.NpcState = make(map[string]NpcEntry)
			}
			entry := out.NpcState[eff.TargetID]
			key := fmt.Sprintf("npc:%s:%s", eff.TargetID, eff.Metric)
			switch eff.Metric {
			case MetricAffection:
				entry.Affection += delta
			case MetricNpcTrust:
				entry.Trust += delta
			default:
				continue
			}
			out.NpcState[eff.TargetID] = entry
			deltas[key] += delta
		}

		applied = append(applied, AppliedEffect{RangeEffect: eff, Tier: tier, ResolvedDelta: delta})
	}

	return out, deltas, applied
}
