package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/llmboundary"
	"github.com/loomstep/engine/internal/storypack"
)

// ConfidencePolicy is the (high, low) gate applied to mapping_confidence.
type ConfidencePolicy struct {
	High float64
	Low  float64
}

const maxFreeInputAttempts = 3

// ResolveFreeInput implements resolve_free_input from spec.md §4.3: it
// normalizes the input, detects the input-policy flag, then runs the
// bounded LLM mapping loop (max 3 attempts) against boundary.
func ResolveFreeInput(
	ctx context.Context,
	boundary llmboundary.Boundary,
	node storypack.Node,
	pack *storypack.StoryPack,
	npcState map[string]kernel.NpcEntry,
	rawInput string,
	inputMaxChars int,
	policy ConfidencePolicy,
	stepIndex int,
) (Decision, error) {
	normalized := NormalizeInput(rawInput, inputMaxChars)
	inputPolicyFlag := DetectInputPolicyFlag(normalized)
	visible := VisibleChoices(node, npcState)

	var retryErrors []string
	var previousErrorCode string
	var allowedTargets []string

	for attempt := 1; attempt <= maxFreeInputAttempts; attempt++ {
		pctx := llmboundary.SelectionPromptContext{
			SceneBrief:         node.SceneBrief,
			NormalizedInput:    normalized,
			VisibleChoices:     visible,
			AvailableFallbacks: toFallbackOptions(pack.EffectiveFallbacks),
			InputPolicyFlag:    inputPolicyFlag,
			ConfidenceHigh:     policy.High,
			ConfidenceLow:      policy.Low,
		}
		if attempt >= 2 {
			pctx.RetryContext = &llmboundary.RetryContext{
				PreviousErrorCode: previousErrorCode,
				AllowedTargetIDs:  allowedTargets,
			}
		}

		userPayload, err := json.Marshal(pctx)
		if err != nil {
			return Decision{}, fmt.Errorf("selection: marshal prompt context: %w", err)
		}

		result, err := boundary.CallStructured(ctx, llmboundary.SchemaSelectionMapping, selectionSystemPrompt, string(userPayload), 1)
		if err != nil {
			previousErrorCode = "LLM_TRANSPORT_ERROR"
			retryErrors = append(retryErrors, previousErrorCode)
			slog.Warn("free-input mapping attempt failed", "node_id", node.ID, "attempt", attempt, "error_code", previousErrorCode, "error", err)
			continue
		}

		decision, resolveErr := resolveMappingOutput(result.Object, inputPolicyFlag, visible, pack, node, normalized, stepIndex, policy)
		if resolveErr != nil {
			previousErrorCode = resolveErr.Error()
			allowedTargets = visible
			retryErrors = append(retryErrors, previousErrorCode)
			slog.Warn("free-input mapping attempt rejected", "node_id", node.ID, "attempt", attempt, "error_code", previousErrorCode)
			continue
		}

		decision.SelectionRetryCount = attempt - 1
		decision.SelectionRetryErrors = retryErrors
		decision.InputPolicyFlag = inputPolicyFlag
		return decision, nil
	}

	slog.Error("free-input mapping exhausted retry budget", "node_id", node.ID, "attempts", maxFreeInputAttempts, "errors", retryErrors)
	return Decision{}, &UnavailableError{Attempts: maxFreeInputAttempts, Errors: retryErrors}
}

const selectionSystemPrompt = "You map a player's free-text input onto one of the visible choices or a fallback. " +
	"Respond with a single JSON object matching the story_selection_mapping_v3 schema."

func toFallbackOptions(fallbacks []storypack.Fallback) []llmboundary.FallbackOption {
	opts := make([]llmboundary.FallbackOption, len(fallbacks))
	for i, f := range fallbacks {
		opts[i] = llmboundary.FallbackOption{ID: f.ID, ReasonCode: f.ReasonCode}
	}
	return opts
}

// mappingError is a schema-valid-but-semantically-rejected output; its
// string becomes the retry-context error code per spec.md §4.3 step 4.
type mappingError string

func (e mappingError) Error() string { return string(e) }

func resolveMappingOutput(
	obj map[string]any,
	inputPolicyFlag bool,
	visible []string,
	pack *storypack.StoryPack,
	node storypack.Node,
	normalizedInput string,
	stepIndex int,
	policy ConfidencePolicy,
) (Decision, error) {
	decisionCode, _ := obj["decision_code"].(string)
	targetType, _ := obj["target_type"].(string)
	targetID, _ := obj["target_id"].(string)
	confidence, _ := obj["confidence"].(float64)
	rawTier, _ := obj["intensity_tier"].(float64)
	reasonCode, _ := obj["fallback_reason_code"].(string)

	if inputPolicyFlag {
		fb := SelectFallback("INPUT_POLICY", node, pack.EffectiveFallbacks, normalizedInput, stepIndex)
		return Decision{
			SelectionSource:             SourceFallback,
			SelectionDecisionCode:       DecisionFallbackInputPolicy,
			DecisionOverriddenByRuntime: true,
			RawIntensityTier:            int(rawTier),
			FallbackUsed:                true,
			FallbackReasonCode:          kernel.ReasonInputPolicy,
			NextNodeID:                  fb.TargetNodeID,
			RangeEffects:                fb.RangeEffects,
			TransitionEndingID:          fb.EndingID,
			CompletesQuests:             fb.CompletesQuests,
		}, nil
	}

	wantTarget := "choice"
	if decisionCode != DecisionSelectChoice {
		wantTarget = "fallback"
	}
	if targetType != wantTarget {
		return Decision{}, mappingError("SCHEMA_INCONSISTENT")
	}

	if targetType == "choice" {
		if !containsString(visible, targetID) {
			return Decision{}, mappingError("TARGET_NOT_ALLOWED")
		}

		switch {
		case confidence >= policy.High:
			var c *float64
			c = &confidence
			choiceDef := findChoice(node, targetID)
			return Decision{
				AttemptedChoiceID:     targetID,
				ExecutedChoiceID:      targetID,
				SelectionSource:       SourceLLM,
				SelectionDecisionCode: DecisionSelectChoice,
				MappingConfidence:     c,
				RawIntensityTier:      int(rawTier),
				NextNodeID:            choiceDef.NextNodeID,
				RangeEffects:          choiceDef.RangeEffects,
				ReactiveNpcIDs:        choiceDef.ReactiveNpcIDs,
				TransitionEndingID:    choiceDef.EndingID,
				CompletesQuests:       choiceDef.CompletesQuests,
			}, nil
		case confidence >= policy.Low:
			return fallbackDecision(kernel.ReasonLowConf, DecisionFallbackLowConf, targetID, int(rawTier), confidence, pack, node, normalizedInput, stepIndex), nil
		default:
			return fallbackDecision(kernel.ReasonNoMatch, DecisionFallbackNoMatch, targetID, int(rawTier), confidence, pack, node, normalizedInput, stepIndex), nil
		}
	}

	fb, ok := pack.FallbackByID[targetID]
	if !ok {
		return Decision{}, mappingError("TARGET_NOT_ALLOWED")
	}
	if reasonCode != fb.ReasonCode {
		return Decision{}, mappingError("FALLBACK_REASON_INVALID")
	}

	c := confidence
	return Decision{
		AttemptedChoiceID:     targetID,
		ExecutedChoiceID:      "fallback:" + fb.ID,
		SelectionSource:       SourceLLM,
		SelectionDecisionCode: decisionCode,
		MappingConfidence:     &c,
		RawIntensityTier:      int(rawTier),
		FallbackUsed:          true,
		FallbackReasonCode:    kernel.FallbackReason(fb.ReasonCode),
		NextNodeID:            fb.TargetNodeID,
		RangeEffects:          fb.RangeEffects,
		TransitionEndingID:    fb.EndingID,
		CompletesQuests:       fb.CompletesQuests,
	}, nil
}

func fallbackDecision(reason kernel.FallbackReason, decisionCode, attemptedID string, rawTier int, confidence float64, pack *storypack.StoryPack, node storypack.Node, input string, stepIndex int) Decision {
	fb := SelectFallback(string(reason), node, pack.EffectiveFallbacks, input, stepIndex)
	c := confidence
	return Decision{
		AttemptedChoiceID:     attemptedID,
		ExecutedChoiceID:      "fallback:" + fb.ID,
		SelectionSource:       SourceFallback,
		SelectionDecisionCode: decisionCode,
		MappingConfidence:     &c,
		RawIntensityTier:      rawTier,
		FallbackUsed:          true,
		FallbackReasonCode:    reason,
		NextNodeID:            fb.TargetNodeID,
		RangeEffects:          fb.RangeEffects,
		TransitionEndingID:    fb.EndingID,
		CompletesQuests:       fb.CompletesQuests,
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func findChoice(node storypack.Node, id string) storypack.Choice {
	for _, c := range node.Choices {
		if c.ID == id {
			return c
		}
	}
	return storypack.Choice{}
}
