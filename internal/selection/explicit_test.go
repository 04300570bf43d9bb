package selection

import (
	"testing"

	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/storypack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode() storypack.Node {
	return storypack.Node{
		ID: "n_hub",
		Choices: []storypack.Choice{
			{ID: "c_study", NextNodeID: "n_library", RangeEffects: []kernel.RangeEffect{
				{TargetType: kernel.TargetPlayer, Metric: kernel.MetricKnowledge, Center: 2, Intensity: 1},
			}},
			{ID: "c_gift", NextNodeID: "n_hub", Gates: []storypack.GateRule{
				{NpcID: "npc_aya", Axis: "trust", MinTier: kernel.TierWarm},
			}},
		},
	}
}

func TestResolveExplicitReturnsDecisionForVisibleChoice(t *testing.T) {
	decision, err := ResolveExplicit(testNode(), "c_study", map[string]kernel.NpcEntry{})

	require.NoError(t, err)
	assert.Equal(t, "c_study", decision.ExecutedChoiceID)
	assert.Equal(t, SourceExplicit, decision.SelectionSource)
	assert.Equal(t, DecisionSelectChoice, decision.SelectionDecisionCode)
	assert.Equal(t, "n_library", decision.NextNodeID)
}

func TestResolveExplicitRejectsUnknownChoiceID(t *testing.T) {
	_, err := ResolveExplicit(testNode(), "c_missing", map[string]kernel.NpcEntry{})

	require.Error(t, err)
	var invalid *InvalidChoiceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "c_missing", invalid.ChoiceID)
}

func TestResolveExplicitRejectsLockedChoice(t *testing.T) {
	_, err := ResolveExplicit(testNode(), "c_gift", map[string]kernel.NpcEntry{})

	require.Error(t, err)
	var locked *ChoiceLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "c_gift", locked.ChoiceID)
}

func TestResolveExplicitAllowsUnlockedGatedChoice(t *testing.T) {
	npcState := map[string]kernel.NpcEntry{"npc_aya": {TrustTier: kernel.TierWarm}}
	decision, err := ResolveExplicit(testNode(), "c_gift", npcState)

	require.NoError(t, err)
	assert.Equal(t, "c_gift", decision.ExecutedChoiceID)
}
