package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/loomstep/engine/internal/idempotency"
	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/llmboundary"
	"github.com/loomstep/engine/internal/selection"
	"github.com/loomstep/engine/internal/storypack"
	"github.com/loomstep/engine/internal/store"
	"github.com/loomstep/engine/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStoryID = "campus_week_v1"

func testPack() *storypack.Pack {
	return &storypack.Pack{
		StoryID:     testStoryID,
		Version:     1,
		StartNodeID: "n_hub",
		Nodes: []storypack.Node{
			{
				ID:         "n_hub",
				SceneBrief: "The campus hub, mid-morning.",
				Choices: []storypack.Choice{
					{
						ID:         "c_study",
						Text:       "Head to the library to study.",
						NextNodeID: "n_library",
						RangeEffects: []kernel.RangeEffect{
							{TargetType: kernel.TargetPlayer, Metric: kernel.MetricKnowledge, Center: 5, Intensity: 1},
						},
						ReactiveNpcIDs: []string{"npc_aya"},
					},
				},
			},
			{
				ID:         "n_library",
				SceneBrief: "Rows of quiet study carrels.",
				Choices: []storypack.Choice{
					{ID: "c_return", Text: "Head back to the hub.", NextNodeID: "n_hub"},
				},
			},
		},
		NpcDefs: []storypack.NpcDef{
			{ID: "npc_aya", DisplayName: "Aya", AffectionThresholds: [4]int{-60, -20, 20, 60}, TrustThresholds: [4]int{-60, -20, 20, 60}},
		},
		GlobalFallbacks: []storypack.Fallback{
			{ID: "fb_off_topic", ReasonCode: "OFF_TOPIC", TargetNodeID: "n_hub"},
			{ID: "fb_no_match", ReasonCode: "NO_MATCH", TargetNodeID: "n_hub"},
		},
		EndingDefs: []kernel.EndingDef{
			// An unreachable trigger: this ending only fires through the
			// forced-fallback-threshold path, never the general scan.
			{ID: "ending_forced_fail", Priority: 0, Outcome: "fail", Camp: "world", Trigger: kernel.EndingTrigger{StatAtLeast: map[string]int{"knowledge": 999999}}},
		},
		NpcReactionPolicies: []storypack.ReactionPolicy{
			{
				NpcID: "npc_aya",
				Rules: []storypack.ReactionRule{
					{
						MinRelationTier: kernel.TierHostile,
						Source:          "choice",
						RangeEffects: []kernel.RangeEffect{
							{TargetType: kernel.TargetNpc, Metric: kernel.MetricAffection, Center: 1, Intensity: 0, TargetID: "npc_aya"},
						},
					},
				},
			},
		},
		FallbackPolicy: storypack.FallbackPolicy{
			ForcedFallbackEndingID:  "ending_forced_fail",
			ForcedFallbackThreshold: 3,
		},
	}
}

type fakeSource struct{ pack *storypack.Pack }

func (f fakeSource) LoadPack(storyID string, version int) (*storypack.Pack, error) {
	return f.pack, nil
}

// stubBoundary lets individual tests pin the selection-mapping response
// while delegating narration to the deterministic Fake.
type stubBoundary struct {
	selectionObj map[string]any
	selectionErr error
	fallback     llmboundary.Boundary
}

func (b stubBoundary) Narrative(ctx context.Context, system, user string, onDelta llmboundary.DeltaFunc, abort llmboundary.AbortCheck) (llmboundary.NarrativeResult, error) {
	return b.fallback.Narrative(ctx, system, user, onDelta, abort)
}

func (b stubBoundary) CallStructured(ctx context.Context, schemaName, system, user string, maxAttempts int) (llmboundary.StructuredResult, error) {
	if schemaName == llmboundary.SchemaSelectionMapping {
		if b.selectionErr != nil {
			return llmboundary.StructuredResult{}, b.selectionErr
		}
		if b.selectionObj != nil {
			return llmboundary.StructuredResult{Object: b.selectionObj}, nil
		}
	}
	return b.fallback.CallStructured(ctx, schemaName, system, user, maxAttempts)
}

func newTestPipeline(t *testing.T, boundary llmboundary.Boundary) (*Pipeline, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := store.NewSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.CreateSession(context.Background(), store.SessionRow{
		ID: "sess_1", UserID: "u1", StoryID: testStoryID, StoryVersion: 1,
		Status: store.SessionStatusActive, StoryNodeID: "n_hub", StateJSON: []byte(`{}`),
	}))

	packs := storypack.NewCache(fakeSource{pack: testPack()})
	idem := idempotency.New(s)
	sink := telemetry.NewSink(prometheus.NewRegistry())

	p := New(
		s, idem, packs, boundary, sink,
		selection.ConfidencePolicy{High: 0.8, Low: 0.4},
		500,
		3,
		2*time.Second, 2*time.Second, 2*time.Second,
	)
	return p, s
}

func TestExecuteStepHappyExplicitChoice(t *testing.T) {
	p, s := newTestPipeline(t, llmboundary.NewFake())
	ctx := context.Background()

	resp, err := p.ExecuteStep(ctx, "sess_1", StepRequest{ChoiceID: "c_study", ActorUserID: "u1"}, "key-1", Hooks{})
	require.NoError(t, err)

	assert.Equal(t, "c_study", resp.ExecutedChoiceID)
	assert.Equal(t, "n_library", resp.StoryNodeID)
	assert.Equal(t, "explicit", resp.SelectionMode)
	assert.False(t, resp.FallbackUsed)
	assert.False(t, resp.RunEnded)
	assert.NotEmpty(t, resp.NarrativeText)
	assert.Equal(t, 5, resp.StateExcerpt.Knowledge, "explicit choices run at intensity tier 0, so only the center applies")

	row, err := s.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Version)
	assert.Equal(t, "n_library", row.StoryNodeID)
}

func TestExecuteStepFreeInputFallback(t *testing.T) {
	offTopic := stubBoundary{
		fallback: llmboundary.NewFake(),
		selectionObj: map[string]any{
			"decision_code":        "FALLBACK_OFF_TOPIC",
			"target_type":          "fallback",
			"target_id":            "fb_off_topic",
			"confidence":           0.9,
			"intensity_tier":       0.0,
			"fallback_reason_code": "OFF_TOPIC",
		},
	}
	p, _ := newTestPipeline(t, offTopic)
	ctx := context.Background()

	resp, err := p.ExecuteStep(ctx, "sess_1", StepRequest{PlayerInput: "what's the weather like on mars"}, "key-1", Hooks{})
	require.NoError(t, err)

	assert.True(t, resp.FallbackUsed)
	assert.Equal(t, "OFF_TOPIC", resp.FallbackReason)
	assert.Equal(t, "soft", resp.NudgeTier, "a single off-topic fallback nudges softly")
	assert.Equal(t, "n_hub", resp.StoryNodeID, "fb_off_topic redirects back to the hub")
	assert.True(t, resp.MainlineNudge)
}

func TestExecuteStepForcedEndingAfterConsecutiveFallbacks(t *testing.T) {
	offTopic := stubBoundary{
		fallback: llmboundary.NewFake(),
		selectionObj: map[string]any{
			"decision_code":        "FALLBACK_OFF_TOPIC",
			"target_type":          "fallback",
			"target_id":            "fb_off_topic",
			"confidence":           0.9,
			"intensity_tier":       0.0,
			"fallback_reason_code": "OFF_TOPIC",
		},
	}
	p, _ := newTestPipeline(t, offTopic)
	ctx := context.Background()

	var last *StepResponse
	for i := 0; i < 3; i++ {
		resp, err := p.ExecuteStep(ctx, "sess_1", StepRequest{PlayerInput: "off topic nonsense"}, fmt.Sprintf("key-%d", i), Hooks{})
		require.NoError(t, err)
		last = resp
	}

	require.NotNil(t, last)
	assert.True(t, last.RunEnded)
	assert.Equal(t, "ending_forced_fail", last.EndingID)
	assert.Equal(t, "fail", last.EndingOutcome)
	assert.Equal(t, "world", last.EndingCamp)
	assert.Equal(t, "ended", last.SessionStatus)
}

func TestExecuteStepIdempotentReplay(t *testing.T) {
	p, s := newTestPipeline(t, llmboundary.NewFake())
	ctx := context.Background()

	first, err := p.ExecuteStep(ctx, "sess_1", StepRequest{ChoiceID: "c_study"}, "key-1", Hooks{})
	require.NoError(t, err)

	replayed := false
	second, err := p.ExecuteStep(ctx, "sess_1", StepRequest{ChoiceID: "c_study"}, "key-1", Hooks{
		OnReplay: func() { replayed = true },
	})
	require.NoError(t, err)

	assert.True(t, replayed)
	assert.Equal(t, first, second)

	row, err := s.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Version, "a replayed request must not commit a second time")
}

func TestExecuteStepPayloadMismatchIsRejected(t *testing.T) {
	p, _ := newTestPipeline(t, llmboundary.NewFake())
	ctx := context.Background()

	_, err := p.ExecuteStep(ctx, "sess_1", StepRequest{ChoiceID: "c_study"}, "key-1", Hooks{})
	require.NoError(t, err)

	_, err = p.ExecuteStep(ctx, "sess_1", StepRequest{PlayerInput: "something else entirely"}, "key-1", Hooks{})
	require.Error(t, err)
	assert.Equal(t, CodeIdempotencyPayloadMismatch, errorCode(err))
}

func TestExecuteStepLLMUnavailableLeavesSessionUnchanged(t *testing.T) {
	unavailable := stubBoundary{
		fallback:     llmboundary.NewFake(),
		selectionErr: &llmboundary.ErrUnavailable{Op: "test", Err: fmt.Errorf("boom")},
	}
	p, s := newTestPipeline(t, unavailable)
	ctx := context.Background()

	_, err := p.ExecuteStep(ctx, "sess_1", StepRequest{PlayerInput: "anything"}, "key-1", Hooks{})
	require.Error(t, err)
	assert.Equal(t, CodeLLMUnavailable, errorCode(err))

	row, err := s.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Version, "a failed LLM call must never commit state")
	assert.Equal(t, "n_hub", row.StoryNodeID)
	assert.Equal(t, store.SessionStatusActive, row.Status)
}
