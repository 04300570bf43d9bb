package llmboundary

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryReturnsFakeWithoutAPIKey(t *testing.T) {
	b := New("", "", "")
	_, ok := b.(*Fake)
	assert.True(t, ok)
}

func TestFactoryReturnsRealWithAPIKey(t *testing.T) {
	b := New("sk-test", "https://example.invalid/v1", "gpt-test")
	_, ok := b.(*RealBoundary)
	assert.True(t, ok)
}

func TestFakeCallStructuredSelectionPicksVisibleChoice(t *testing.T) {
	pctx := SelectionPromptContext{
		NormalizedInput: "go to the library",
		VisibleChoices:  []string{"c_study", "c_rest"},
		ConfidenceHigh:  0.72,
	}
	user, err := json.Marshal(pctx)
	require.NoError(t, err)

	result, err := NewFake().CallStructured(context.Background(), SchemaSelectionMapping, "", string(user), 1)

	require.NoError(t, err)
	require.NoError(t, Validate(SchemaSelectionMapping, result.Object))
	assert.Equal(t, "SELECT_CHOICE", result.Object["decision_code"])
	assert.Contains(t, pctx.VisibleChoices, result.Object["target_id"])
}

func TestFakeCallStructuredSelectionDeterministic(t *testing.T) {
	pctx := SelectionPromptContext{
		NormalizedInput: "go to the library",
		VisibleChoices:  []string{"c_study", "c_rest", "c_sleep"},
		ConfidenceHigh:  0.72,
	}
	user, err := json.Marshal(pctx)
	require.NoError(t, err)

	r1, err := NewFake().CallStructured(context.Background(), SchemaSelectionMapping, "", string(user), 1)
	require.NoError(t, err)
	r2, err := NewFake().CallStructured(context.Background(), SchemaSelectionMapping, "", string(user), 1)
	require.NoError(t, err)

	assert.Equal(t, r1.Object["target_id"], r2.Object["target_id"])
}

func TestFakeCallStructuredInputPolicyForcesFallback(t *testing.T) {
	pctx := SelectionPromptContext{
		VisibleChoices:     []string{"c_study"},
		InputPolicyFlag:    true,
		AvailableFallbacks: []FallbackOption{{ID: "fb_policy", ReasonCode: "INPUT_POLICY"}},
	}
	user, err := json.Marshal(pctx)
	require.NoError(t, err)

	result, err := NewFake().CallStructured(context.Background(), SchemaSelectionMapping, "", string(user), 1)

	require.NoError(t, err)
	assert.Equal(t, "FALLBACK_INPUT_POLICY", result.Object["decision_code"])
	assert.Equal(t, "fb_policy", result.Object["target_id"])
}

func TestFakeCallStructuredNoVisibleChoicesFallsBackToNoMatch(t *testing.T) {
	pctx := SelectionPromptContext{
		AvailableFallbacks: []FallbackOption{{ID: "fb_no_match", ReasonCode: "NO_MATCH"}},
	}
	user, err := json.Marshal(pctx)
	require.NoError(t, err)

	result, err := NewFake().CallStructured(context.Background(), SchemaSelectionMapping, "", string(user), 1)

	require.NoError(t, err)
	assert.Equal(t, "FALLBACK_NO_MATCH", result.Object["decision_code"])
	assert.Equal(t, "fb_no_match", result.Object["target_id"])
}

func TestFakeCallStructuredEndingBundle(t *testing.T) {
	ectx := EndingBundlePromptContext{EndingID: "ending_hero", Outcome: "success", Camp: "player", StepIndex: 12}
	user, err := json.Marshal(ectx)
	require.NoError(t, err)

	result, err := NewFake().CallStructured(context.Background(), SchemaEndingBundle, "", string(user), 3)

	require.NoError(t, err)
	require.NoError(t, Validate(SchemaEndingBundle, result.Object))
}

func TestFakeNarrativeInvokesOnDeltaAndAccumulates(t *testing.T) {
	var chunks []string

	result, err := NewFake().Narrative(context.Background(), "sys", "the door creaks open", func(text string) {
		chunks = append(chunks, text)
	}, nil)

	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
	assert.Contains(t, result.Text, "door creaks open")
}

func TestFakeNarrativeHonorsAbort(t *testing.T) {
	calls := 0
	_, err := NewFake().Narrative(context.Background(), "sys", "one two three four five", func(text string) {
		calls++
	}, func() bool { return calls >= 2 })

	require.Error(t, err)
	assert.IsType(t, ErrAborted{}, err)
}
