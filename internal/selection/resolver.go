package selection

import (
	"context"

	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/llmboundary"
	"github.com/loomstep/engine/internal/storypack"
)

// Resolver is the pipeline's single entry point into this package: given a
// node, the current NPC state, and either an explicit choice id or free
// text, it returns the Decision the transition kernel should apply.
type Resolver struct {
	Boundary      llmboundary.Boundary
	Pack          *storypack.StoryPack
	Policy        ConfidencePolicy
	InputMaxChars int
}

// NewResolver wires a Resolver from its dependencies.
func NewResolver(boundary llmboundary.Boundary, pack *storypack.StoryPack, policy ConfidencePolicy, inputMaxChars int) *Resolver {
	return &Resolver{
		Boundary:      boundary,
		Pack:          pack,
		Policy:        policy,
		InputMaxChars: inputMaxChars,
	}
}

// ResolveExplicit resolves an explicit choice id against nodeID. An unknown
// node or choice id and a gate-locked choice are reported to the caller as
// errors, per spec.md §4.3; an explicit selection never falls through to a
// fallback, since an explicit selection failure is a client error, not a
// fallback trigger.
func (r *Resolver) ResolveExplicit(nodeID, choiceID string, npcState map[string]kernel.NpcEntry) (Decision, error) {
	node, ok := r.Pack.NodeByID[nodeID]
	if !ok {
		return Decision{}, &InvalidChoiceError{ChoiceID: choiceID}
	}
	return ResolveExplicit(node, choiceID, npcState)
}

// ResolveFreeInput resolves free-form player text against nodeID via the
// bounded LLM mapping loop.
func (r *Resolver) ResolveFreeInput(ctx context.Context, nodeID string, npcState map[string]kernel.NpcEntry, rawInput string, stepIndex int) (Decision, error) {
	node, ok := r.Pack.NodeByID[nodeID]
	if !ok {
		return Decision{}, &InvalidChoiceError{ChoiceID: nodeID}
	}
	return ResolveFreeInput(ctx, r.Boundary, node, r.Pack, npcState, rawInput, r.InputMaxChars, r.Policy, stepIndex)
}

// VisibleChoices returns the currently gate-visible choice ids at nodeID.
func (r *Resolver) VisibleChoices(nodeID string, npcState map[string]kernel.NpcEntry) []string {
	node, ok := r.Pack.NodeByID[nodeID]
	if !ok {
		return nil
	}
	return VisibleChoices(node, npcState)
}
