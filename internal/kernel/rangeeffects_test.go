package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseState() State {
	return State{
		Energy:    50,
		Money:     100,
		Knowledge: 10,
		Affection: 0,
		Day:       1,
		Slot:      SlotMorning,
		NpcState: map[string]NpcEntry{
			"npc_aya": {Affection: 0, Trust: 0},
		},
	}
}

func TestApplyRangeEffectsEmptyIsNoOp(t *testing.T) {
	s := baseState()
	out, deltas, applied := ApplyRangeEffects(s, nil, 0)

	assert.Equal(t, s, out)
	assert.Empty(t, deltas)
	assert.Empty(t, applied)
}

func TestApplyRangeEffectsPlayerStat(t *testing.T) {
	s := baseState()
	effects := []RangeEffect{
		{TargetType: TargetPlayer, Metric: MetricEnergy, Center: -5, Intensity: 2},
	}

	out, deltas, applied := ApplyRangeEffects(s, effects, 2)

	require.Len(t, applied, 1)
	assert.Equal(t, -1, deltas["player:energy"])
	assert.Equal(t, 49, out.Energy)
	assert.Equal(t, -1, applied[0].ResolvedDelta)
	assert.Equal(t, 2, applied[0].Tier)
}

func TestApplyRangeEffectsNegativeTier(t *testing.T) {
	s := baseState()
	effects := []RangeEffect{
		{TargetType: TargetPlayer, Metric: MetricMoney, Center: 0, Intensity: 10},
	}

	out, deltas, _ := ApplyRangeEffects(s, effects, -2)

	assert.Equal(t, -20, deltas["player:money"])
	assert.Equal(t, 80, out.Money)
}

func TestApplyRangeEffectsNpcTarget(t *testing.T) {
	s := baseState()
	effects := []RangeEffect{
		{TargetType: TargetNpc, Metric: MetricAffection, Center: 5, Intensity: 3, TargetID: "npc_aya"},
		{TargetType: TargetNpc, Metric: MetricNpcTrust, Center: 2, Intensity: 1, TargetID: "npc_aya"},
	}

	out, deltas, applied := ApplyRangeEffects(s, effects, 1)

	assert.Equal(t, 8, deltas["npc:npc_aya:affection"])
	assert.Equal(t, 3, deltas["npc:npc_aya:trust"])
	assert.Equal(t, 8, out.NpcState["npc_aya"].Affection)
	assert.Equal(t, 3, out.NpcState["npc_aya"].Trust)
	assert.Len(t, applied, 2)
}

func TestApplyRangeEffectsUnknownNpcCreatesEntry(t *testing.T) {
	s := baseState()
	effects := []RangeEffect{
		{TargetType: TargetNpc, Metric: MetricAffection, Center: 10, Intensity: 0, TargetID: "npc_new"},
	}

	out, _, _ := ApplyRangeEffects(s, effects, 0)

	entry, ok := out.NpcState["npc_new"]
	require.True(t, ok)
	assert.Equal(t, 10, entry.Affection)
}

func TestApplyRangeEffectsMissingTargetIDSkipped(t *testing.T) {
	s := baseState()
	effects := []RangeEffect{
		{TargetType: TargetNpc, Metric: MetricAffection, Center: 10, Intensity: 0},
	}

	out, deltas, applied := ApplyRangeEffects(s, effects, 0)

	assert.Equal(t, s.NpcState, out.NpcState)
	assert.Empty(t, deltas)
	assert.Len(t, applied, 1, "unmatched effect is still echoed in the applied trace")
}

func TestApplyRangeEffectsOriginalStateUntouched(t *testing.T) {
	s := baseState()
	effects := []RangeEffect{
		{TargetType: TargetPlayer, Metric: MetricEnergy, Center: -50, Intensity: 0},
	}

	_, _, _ = ApplyRangeEffects(s, effects, 0)

	assert.Equal(t, 50, s.Energy, "ApplyRangeEffects must not mutate its input")
}
