// Package selection turns a player's explicit choice id or free-form text
// into a concrete decision: which choice or fallback fires, at what
// mapping confidence, and why, per spec.md §4.3. It wraps the LLM Boundary
// for the free-input path and owns that path's bounded retry loop.
package selection

import (
	"strconv"

	"github.com/loomstep/engine/internal/kernel"
)

// Decision codes, per spec.md's GLOSSARY.
const (
	DecisionSelectChoice        = "SELECT_CHOICE"
	DecisionFallbackNoMatch     = "FALLBACK_NO_MATCH"
	DecisionFallbackLowConf     = "FALLBACK_LOW_CONF"
	DecisionFallbackOffTopic    = "FALLBACK_OFF_TOPIC"
	DecisionFallbackInputPolicy = "FALLBACK_INPUT_POLICY"
)

// Source values for selection_source.
const (
	SourceExplicit = "explicit"
	SourceRule     = "rule"
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

// Decision is the resolved output of either resolve path: what to execute
// and everything the pipeline needs to log and act on.
type Decision struct {
	AttemptedChoiceID string
	ExecutedChoiceID  string
	SelectionSource   string

	FallbackUsed       bool
	FallbackReasonCode kernel.FallbackReason

	SelectionDecisionCode       string
	DecisionOverriddenByRuntime bool

	MappingConfidence    *float64
	RawIntensityTier     int
	SelectionRetryCount  int
	SelectionRetryErrors []string
	InputPolicyFlag      bool

	NextNodeID         string
	RangeEffects       []kernel.RangeEffect
	ReactiveNpcIDs     []string
	TransitionEndingID string
	CompletesQuests    []string
}

// ChoiceLockedError is raised when an explicit choice id names a real
// choice whose gate rules the current NPC state does not satisfy.
type ChoiceLockedError struct {
	ChoiceID     string
	LockedReason string
}

func (e *ChoiceLockedError) Error() string {
	return "selection: choice " + e.ChoiceID + " is locked: " + e.LockedReason
}

// InvalidChoiceError is raised when an explicit choice id names nothing
// on the current node.
type InvalidChoiceError struct {
	ChoiceID string
}

func (e *InvalidChoiceError) Error() string {
	return "selection: unknown choice id " + e.ChoiceID
}

// UnavailableError wraps the terminal failure of the free-input mapping
// loop after its retry budget is exhausted; the pipeline maps this to
// LLM_UNAVAILABLE.
type UnavailableError struct {
	Attempts int
	Errors   []string
}

func (e *UnavailableError) Error() string {
	return "selection: mapping failed after " + strconv.Itoa(e.Attempts) + " attempts"
}
