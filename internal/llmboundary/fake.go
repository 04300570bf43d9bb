package llmboundary

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// Fake is the boundary used when no API key is configured: both
// operations return deterministic local outputs derived from their
// inputs, so the whole system is testable without network, per
// spec.md §4.5.
type Fake struct{}

// NewFake returns a Fake boundary.
func NewFake() *Fake { return &Fake{} }

// Narrative synthesizes deterministic text from the user input and, when
// the payload is an ending context (it carries an ending id), folds the
// ending's outcome, camp and id in. Nudge context is not used.
func (Fake) Narrative(ctx context.Context, system, user string, onDelta DeltaFunc, abort AbortCheck) (NarrativeResult, error) {
	text := synthesizeNarrative(system, user)

	if onDelta != nil {
		for _, word := range strings.Fields(text) {
			if abort != nil && abort() {
				return NarrativeResult{}, ErrAborted{}
			}
			onDelta(word + " ")
		}
	}

	return NarrativeResult{Text: text}, nil
}

func synthesizeNarrative(system, user string) string {
	var endingCtx EndingBundlePromptContext
	if err := json.Unmarshal([]byte(user), &endingCtx); err == nil && endingCtx.EndingID != "" {
		return fmt.Sprintf(
			"The story closes on a %s note for %s: %s reaches its conclusion after %d steps.",
			endingCtx.Outcome, endingCtx.Camp, endingCtx.EndingID, endingCtx.StepIndex,
		)
	}

	trimmed := strings.TrimSpace(user)
	if trimmed == "" {
		trimmed = "the moment passes quietly"
	}
	return fmt.Sprintf("You press on. %s", trimmed)
}

// CallStructured synthesizes a schema-valid object deterministically from
// the request contents, without contacting any network endpoint.
func (Fake) CallStructured(ctx context.Context, schemaName, system, user string, maxAttempts int) (StructuredResult, error) {
	switch schemaName {
	case SchemaSelectionMapping:
		return fakeSelectionMapping(user)
	case SchemaEndingBundle:
		return fakeEndingBundle(user)
	case SchemaNarrative:
		return StructuredResult{Object: map[string]any{"text": synthesizeNarrative(system, user)}}, nil
	default:
		return StructuredResult{}, &ErrUnavailable{Op: schemaName, Err: fmt.Errorf("fake mode has no synthesis for this schema")}
	}
}

func fakeSelectionMapping(user string) (StructuredResult, error) {
	var pctx SelectionPromptContext
	if err := json.Unmarshal([]byte(user), &pctx); err != nil {
		return StructuredResult{}, &ErrUnavailable{Op: SchemaSelectionMapping, Err: err}
	}

	if pctx.InputPolicyFlag {
		return StructuredResult{Object: map[string]any{
			"decision_code":        "FALLBACK_INPUT_POLICY",
			"target_type":          "fallback",
			"target_id":            firstFallbackID(pctx.AvailableFallbacks, "INPUT_POLICY"),
			"confidence":           1.0,
			"intensity_tier":       0.0,
			"fallback_reason_code": "INPUT_POLICY",
		}}, nil
	}

	if len(pctx.VisibleChoices) > 0 {
		idx := deterministicIndex(len(pctx.VisibleChoices), pctx.NormalizedInput, pctx.SceneBrief)
		return StructuredResult{Object: map[string]any{
			"decision_code":  "SELECT_CHOICE",
			"target_type":    "choice",
			"target_id":      pctx.VisibleChoices[idx],
			"confidence":     pctx.ConfidenceHigh,
			"intensity_tier": 0.0,
		}}, nil
	}

	return StructuredResult{Object: map[string]any{
		"decision_code":        "FALLBACK_NO_MATCH",
		"target_type":          "fallback",
		"target_id":            firstFallbackID(pctx.AvailableFallbacks, "NO_MATCH"),
		"confidence":           0.0,
		"intensity_tier":       0.0,
		"fallback_reason_code": "NO_MATCH",
	}}, nil
}

func firstFallbackID(options []FallbackOption, reasonCode string) string {
	for _, o := range options {
		if o.ReasonCode == reasonCode {
			return o.ID
		}
	}
	if len(options) > 0 {
		return options[0].ID
	}
	return ""
}

func fakeEndingBundle(user string) (StructuredResult, error) {
	var ectx EndingBundlePromptContext
	if err := json.Unmarshal([]byte(user), &ectx); err != nil {
		return StructuredResult{}, &ErrUnavailable{Op: SchemaEndingBundle, Err: err}
	}

	return StructuredResult{Object: map[string]any{
		"narrative_text": synthesizeNarrative("", user),
		"ending_report": map[string]any{
			"ending_id": ectx.EndingID,
			"outcome":   ectx.Outcome,
			"camp":      ectx.Camp,
			"stats": map[string]any{
				"total_steps": ectx.StepIndex,
			},
		},
	}}, nil
}

func deterministicIndex(n int, parts ...string) int {
	if n <= 0 {
		return 0
	}
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8])
	return int(v % uint64(n))
}
