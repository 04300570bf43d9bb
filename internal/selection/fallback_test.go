package selection

import (
	"testing"

	"github.com/loomstep/engine/internal/storypack"
	"github.com/stretchr/testify/assert"
)

func testFallbacks() []storypack.Fallback {
	return []storypack.Fallback{
		{ID: "fb_no_match", ReasonCode: "NO_MATCH", TargetNodeID: "n_hub"},
		{ID: "fb_off_topic", ReasonCode: "OFF_TOPIC", TargetNodeID: "n_hub"},
		{ID: "fb_node_scoped", ReasonCode: "LOW_CONF", TargetNodeID: "n_library"},
	}
}

func TestSelectFallbackMatchesReasonCodeFirst(t *testing.T) {
	node := storypack.Node{ID: "n_hub"}
	got := SelectFallback("OFF_TOPIC", node, testFallbacks(), "whatever", 1)
	assert.Equal(t, "fb_off_topic", got.ID)
}

func TestSelectFallbackFallsBackToNodeScopedID(t *testing.T) {
	node := storypack.Node{ID: "n_hub", NodeFallbackID: "fb_node_scoped"}
	got := SelectFallback("NO_REASON_IN_LIST", node, testFallbacks(), "whatever", 1)
	assert.Equal(t, "fb_node_scoped", got.ID)
}

func TestSelectFallbackDeterministicWhenNoMatch(t *testing.T) {
	node := storypack.Node{ID: "n_hub"}
	fallbacks := testFallbacks()
	first := SelectFallback("NOTHING_MATCHES", node, fallbacks, "same input", 3)
	second := SelectFallback("NOTHING_MATCHES", node, fallbacks, "same input", 3)
	assert.Equal(t, first.ID, second.ID)
}

func TestSelectFallbackCanDifferOnInputChange(t *testing.T) {
	node := storypack.Node{ID: "n_hub"}
	fallbacks := testFallbacks()
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		got := SelectFallback("NOTHING_MATCHES", node, fallbacks, string(rune('a'+i)), 3)
		seen[got.ID] = true
	}
	assert.Greater(t, len(seen), 1, "varying input should be able to land on more than one fallback")
}

func TestSelectFallbackReturnsZeroValueWhenListEmpty(t *testing.T) {
	node := storypack.Node{ID: "n_hub"}
	got := SelectFallback("NO_MATCH", node, nil, "x", 0)
	assert.Equal(t, storypack.Fallback{}, got)
}
