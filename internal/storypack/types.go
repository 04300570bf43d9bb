// Package storypack resolves a (story_id, version) pair into an immutable,
// indexed StoryPack: node graph, global fallbacks merged with per-pack
// overrides, ending definitions, and NPC reaction policy. Nothing here
// mutates a session; a StoryPack is shared-immutable across concurrent
// requests, per spec.md §3.
package storypack

import "github.com/loomstep/engine/internal/kernel"

// GateRule is a per-choice requirement that a named NPC's affection or
// trust tier be at least a threshold tier before the choice is visible.
type GateRule struct {
	NpcID    string `yaml:"npc_id" json:"npc_id"`
	Axis     string `yaml:"axis" json:"axis"` // "affection" | "trust" | "relation"
	MinTier  string `yaml:"min_tier" json:"min_tier"`
}

// Choice is one option presented at a Node.
type Choice struct {
	ID              string               `yaml:"id" json:"id"`
	Text            string               `yaml:"text" json:"text"`
	NextNodeID      string               `yaml:"next_node_id,omitempty" json:"next_node_id,omitempty"`
	EndingID        string               `yaml:"ending_id,omitempty" json:"ending_id,omitempty"`
	RangeEffects    []kernel.RangeEffect `yaml:"range_effects,omitempty" json:"range_effects,omitempty"`
	Gates           []GateRule           `yaml:"gates,omitempty" json:"gates,omitempty"`
	ReactiveNpcIDs  []string             `yaml:"reactive_npc_ids,omitempty" json:"reactive_npc_ids,omitempty"`
	CompletesQuests []string             `yaml:"completes_quests,omitempty" json:"completes_quests,omitempty"`
}

// Node is one story location: a scene brief plus the choices available
// there.
type Node struct {
	ID          string   `yaml:"id" json:"id"`
	SceneBrief  string   `yaml:"scene_brief" json:"scene_brief"`
	Choices     []Choice `yaml:"choices" json:"choices"`
	NodeFallbackID string `yaml:"node_fallback_id,omitempty" json:"node_fallback_id,omitempty"`
}

// Fallback is a pack-defined recovery path chosen when the resolver
// cannot accept an input as a visible choice.
type Fallback struct {
	ID             string               `yaml:"id" json:"id"`
	ReasonCode     string               `yaml:"reason_code" json:"reason_code"`
	RangeEffects   []kernel.RangeEffect `yaml:"range_effects,omitempty" json:"range_effects,omitempty"`
	TargetNodeID   string               `yaml:"target_node_id,omitempty" json:"target_node_id,omitempty"`
	EndingID       string               `yaml:"ending_id,omitempty" json:"ending_id,omitempty"`
	CompletesQuests []string            `yaml:"completes_quests,omitempty" json:"completes_quests,omitempty"`
}

// FallbackPolicy configures the forced-ending-after-repeated-fallback rule.
type FallbackPolicy struct {
	ForcedFallbackEndingID string `yaml:"forced_fallback_ending_id" json:"forced_fallback_ending_id"`
	ForcedFallbackThreshold int   `yaml:"forced_fallback_threshold" json:"forced_fallback_threshold"`
}

// NpcDef declares an NPC's starting stats, per-axis tier thresholds, and
// (optionally) a prompt profile used when a bundle-style ending needs its
// perspective folded into the report.
type NpcDef struct {
	ID                string               `yaml:"id" json:"id"`
	DisplayName       string               `yaml:"display_name" json:"display_name"`
	InitialAffection  int                  `yaml:"initial_affection" json:"initial_affection"`
	InitialTrust      int                  `yaml:"initial_trust" json:"initial_trust"`
	Thresholds        kernel.NpcThresholds `yaml:"-" json:"-"`
	AffectionThresholds [4]int             `yaml:"affection_thresholds" json:"affection_thresholds"`
	TrustThresholds     [4]int             `yaml:"trust_thresholds" json:"trust_thresholds"`
}

// ReactionRule is one entry of an NPC's reaction policy: when the
// triggering relation tier and source match, apply the given range effects
// at tier 0 regardless of the step's own intensity tier.
type ReactionRule struct {
	MinRelationTier string               `yaml:"min_relation_tier" json:"min_relation_tier"`
	Source          string               `yaml:"source" json:"source"` // "choice" | "fallback" | "any"
	RangeEffects    []kernel.RangeEffect `yaml:"range_effects" json:"range_effects"`
}

// ReactionPolicy groups the reaction rules declared for one NPC.
type ReactionPolicy struct {
	NpcID string         `yaml:"npc_id" json:"npc_id"`
	Rules []ReactionRule `yaml:"rules" json:"rules"`
}

// EndingPromptProfile names the prompt template used when an ending
// triggers bundle-mode narration (schema channel) instead of plain
// streamed narration.
type EndingPromptProfile struct {
	SystemPromptID string `yaml:"system_prompt_id" json:"system_prompt_id"`
}

// Pack is the raw, author-facing shape of a story pack: base definitions
// plus optional overrides layered by publication. Resolve merges these
// into an effective, indexed StoryPack.
type Pack struct {
	StoryID     string `yaml:"story_id" json:"story_id"`
	Version     int    `yaml:"version" json:"version"`
	StartNodeID string `yaml:"start_node_id" json:"start_node_id"`

	Nodes  []Node `yaml:"nodes" json:"nodes"`
	NpcDefs []NpcDef `yaml:"npc_defs" json:"npc_defs"`

	GlobalFallbacks []Fallback `yaml:"global_fallbacks" json:"global_fallbacks"`
	FallbackOverrides []Fallback `yaml:"fallback_overrides,omitempty" json:"fallback_overrides,omitempty"`

	EndingDefs         []kernel.EndingDef              `yaml:"ending_defs" json:"ending_defs"`
	EndingOverrides    []kernel.EndingDef              `yaml:"ending_overrides,omitempty" json:"ending_overrides,omitempty"`
	EndingPromptProfiles map[string]EndingPromptProfile `yaml:"ending_prompt_profiles,omitempty" json:"ending_prompt_profiles,omitempty"`

	// QuestDefs declares quest ids and the trigger that marks each
	// completed, for EndingTrigger.CompletedQuests (kernel.ResolveRunEnding).
	// A narrowed port of original_source's quest_engine.py — see DESIGN.md.
	QuestDefs []kernel.QuestDef `yaml:"quest_defs,omitempty" json:"quest_defs,omitempty"`

	NpcReactionPolicies []ReactionPolicy `yaml:"npc_reaction_policies" json:"npc_reaction_policies"`

	FallbackPolicy FallbackPolicy `yaml:"fallback_policy" json:"fallback_policy"`

	RunLimits kernel.RunLimits `yaml:"-" json:"-"`
	MaxDays   int              `yaml:"max_days" json:"max_days"`
	MaxSteps  int              `yaml:"max_steps" json:"max_steps"`
	DefaultTimeoutOutcome string `yaml:"default_timeout_outcome" json:"default_timeout_outcome"`
}

// StoryPack is the resolved, read-only form consumed by the pipeline: the
// raw Pack plus effective (merged) fallbacks/endings and O(1) indices.
type StoryPack struct {
	Pack

	EffectiveFallbacks []Fallback
	EffectiveEndings   []kernel.EndingDef

	NodeByID           map[string]Node
	FallbackByID       map[string]Fallback
	EndingByID         map[string]kernel.EndingDef
	NpcDefByID         map[string]NpcDef
	ReactionPolicyByID map[string]ReactionPolicy
}

// ThresholdLookup returns a kernel.ThresholdLookup bound to this pack's
// npc_defs, for use by kernel.Normalize.
func (p *StoryPack) ThresholdLookup() kernel.ThresholdLookup {
	return func(npcID string) (kernel.NpcThresholds, bool) {
		def, ok := p.NpcDefByID[npcID]
		if !ok {
			return kernel.NpcThresholds{}, false
		}
		return def.Thresholds, true
	}
}
